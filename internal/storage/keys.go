package storage

import (
	"fmt"

	"github.com/evoronina/konspekt/pkgs/utils"
	"github.com/google/uuid"
)

// Object key prefixes. Keys are deterministic functions of task identity, so
// any stage can re-derive the location of its input and output without a
// lookup table; that is what makes retries and resumption safe.
const (
	VideoPrefix      = "video/"
	TranscriptPrefix = "speech/"
	PDFPrefix        = "pdf/"
	MarkerPrefix     = "speech-tasks/"
)

func VideoKey(taskID uuid.UUID) string {
	return VideoPrefix + taskID.String()
}

func TranscriptKey(taskID uuid.UUID) string {
	return TranscriptPrefix + taskID.String()
}

// PDFKey derives the final artifact key from the task identity and the
// lecture title. The title is sanitized to a single safe path segment.
func PDFKey(taskID uuid.UUID, lectureTitle string) string {
	return fmt.Sprintf("%s%s/%s.pdf", PDFPrefix, taskID, utils.SanitizeFilename(lectureTitle))
}

func MarkerKey(taskID uuid.UUID) string {
	return MarkerPrefix + taskID.String()
}

// TranscriptCacheKey is the cache slot the poller fills and the summarize
// stage reads. The artifact store remains the source of truth.
func TranscriptCacheKey(taskID uuid.UUID) string {
	return taskID.String() + ".transcript"
}
