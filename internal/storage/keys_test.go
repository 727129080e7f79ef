package storage_test

import (
	"testing"

	"github.com/evoronina/konspekt/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestKeysAreDeterministic(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	require.Equal(t, "video/6ba7b810-9dad-11d1-80b4-00c04fd430c8", storage.VideoKey(id))
	require.Equal(t, "speech/6ba7b810-9dad-11d1-80b4-00c04fd430c8", storage.TranscriptKey(id))
	require.Equal(t, "speech-tasks/6ba7b810-9dad-11d1-80b4-00c04fd430c8", storage.MarkerKey(id))

	// Same inputs always derive the same final key; this is what makes a
	// redelivered summarize message overwrite instead of duplicate.
	first := storage.PDFKey(id, "Линейная алгебра")
	second := storage.PDFKey(id, "Линейная алгебра")
	require.Equal(t, first, second)
	require.Equal(t, "pdf/6ba7b810-9dad-11d1-80b4-00c04fd430c8/Линейная алгебра.pdf", first)
}

func TestPDFKeySanitizesTitle(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	require.Equal(t,
		"pdf/6ba7b810-9dad-11d1-80b4-00c04fd430c8/intro_outro.pdf",
		storage.PDFKey(id, "intro/outro"))
	require.Equal(t,
		"pdf/6ba7b810-9dad-11d1-80b4-00c04fd430c8/untitled.pdf",
		storage.PDFKey(id, "   "))
}
