// Package janitor removes expired intermediate artifacts. Final documents
// under pdf/ are kept indefinitely.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/evoronina/konspekt/internal/storage"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const (
	DefaultRetention = 7 * 24 * time.Hour
	DefaultPageSize  = int32(1000)
)

// cleanedPrefixes are the intermediate stage outputs subject to retention.
var cleanedPrefixes = []string{storage.VideoPrefix, storage.TranscriptPrefix}

type Janitor struct {
	storage   *storage.Storage
	logger    zerolog.Logger
	retention time.Duration
	pageSize  int32
}

type Option func(*Janitor)

func WithRetention(d time.Duration) Option {
	return func(j *Janitor) {
		if d > 0 {
			j.retention = d
		}
	}
}

func WithPageSize(n int32) Option {
	return func(j *Janitor) {
		if n > 0 {
			j.pageSize = n
		}
	}
}

func New(st *storage.Storage, logger zerolog.Logger, opts ...Option) *Janitor {
	j := &Janitor{
		storage:   st,
		logger:    logger,
		retention: DefaultRetention,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Sweep deletes every intermediate artifact older than the retention
// window and reports how many objects were removed. A failure on one
// object does not stop the sweep.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.retention)
	batch := ec.NewBatchErr()
	removed := 0

	for _, prefix := range cleanedPrefixes {
		token := ""
		for {
			objects, next, err := j.storage.Artifacts().ListPage(ctx, prefix, token, j.pageSize)
			if err != nil {
				batch.Add(prefix, err)
				break
			}

			for _, obj := range objects {
				if obj.LastModified.After(cutoff) {
					continue
				}
				if err := j.storage.Artifacts().Delete(ctx, obj.Key); err != nil {
					batch.Add(obj.Key, err)
					continue
				}
				removed++
			}

			if next == "" {
				break
			}
			token = next
		}
	}

	j.logger.Info().
		Int("removed", removed).
		Dur("retention", j.retention).
		Msg("sweep complete")
	return removed, batch.ToError()
}
