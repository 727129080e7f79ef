package tasks

import (
	"github.com/google/uuid"
)

const (
	Prefix = "task."

	// StreamSubjects is the wildcard bound to the TASK JetStream stream.
	StreamSubjects = Prefix + ">"
)

// Stage subjects. Each stage consumes exactly one subject and publishes at
// most one forward message.
const (
	Download  = Prefix + "download"
	Recognize = Prefix + "recognize"
	Summarize = Prefix + "summarize"
)

// DownloadPayload asks the download stage to fetch one shared video.
type DownloadPayload struct {
	TaskID   uuid.UUID `json:"task_id"`
	VideoURL string    `json:"video_url"`
}

// RecognizePayload points the recognize stage at an uploaded video object.
type RecognizePayload struct {
	TaskID      uuid.UUID `json:"task_id"`
	ArtifactKey string    `json:"object_name"`
}

// SummarizePayload points the summarize stage at a transcript object.
type SummarizePayload struct {
	TaskID      uuid.UUID `json:"task_id"`
	ArtifactKey string    `json:"object_name"`
}
