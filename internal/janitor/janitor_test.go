package janitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/evoronina/konspekt/internal/janitor"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/testtools"
)

func TestSweep(t *testing.T) {
	fake := testtools.NewFakeS3()
	st := storage.New(nil, fake, "bucket")

	expired := time.Now().Add(-8 * 24 * time.Hour)
	fresh := time.Now().Add(-time.Hour)

	oldTask, newTask := uuid.New(), uuid.New()
	fake.Seed(storage.VideoKey(oldTask), []byte("old video"), expired)
	fake.Seed(storage.TranscriptKey(oldTask), []byte("old transcript"), expired)
	fake.Seed(storage.VideoKey(newTask), []byte("new video"), fresh)
	// Final documents are exempt no matter how old.
	pdfKey := storage.PDFKey(oldTask, "Лекция")
	fake.Seed(pdfKey, []byte("%PDF"), expired)

	j := janitor.New(&st, zerolog.Nop(), janitor.WithRetention(7*24*time.Hour))
	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	keys := fake.Keys()
	require.NotContains(t, keys, storage.VideoKey(oldTask))
	require.NotContains(t, keys, storage.TranscriptKey(oldTask))
	require.Contains(t, keys, storage.VideoKey(newTask))
	require.Contains(t, keys, pdfKey)
}

func TestSweepPaginates(t *testing.T) {
	fake := testtools.NewFakeS3()
	st := storage.New(nil, fake, "bucket")

	expired := time.Now().Add(-30 * 24 * time.Hour)
	for i := 0; i < 7; i++ {
		fake.Seed(storage.VideoKey(uuid.New()), []byte("x"), expired)
	}

	j := janitor.New(&st, zerolog.Nop(), janitor.WithPageSize(2))
	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, removed)
	require.Zero(t, fake.Len())
}
