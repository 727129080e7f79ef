// Package poller drives pending recognition operations to completion. It is
// the only component that reads and deletes pending-operation markers.
package poller

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/stt"
	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/workers"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const (
	// RecognitionFailedDescription is the user-visible detail for a
	// recognition operation the speech service reported as failed.
	RecognitionFailedDescription = "speech recognition failed"

	// TranscriptCacheTTL bounds how long a transcript stays in the cache.
	// The artifact store keeps the authoritative copy.
	TranscriptCacheTTL = 3 * time.Hour

	DefaultInterval = time.Minute
	DefaultPageSize = int32(100)
)

// OperationPoller is the slice of the speech client the poller needs.
// The query is idempotent and side-effect free.
type OperationPoller interface {
	Poll(ctx context.Context, operationID string) (stt.OperationResult, error)
}

// Forwarder publishes the summarize hand-off message.
type Forwarder interface {
	Publish(ctx context.Context, subject string, payload any, attrs ...attribute.KeyValue) error
}

type Poller struct {
	storage   *storage.Storage
	stt       OperationPoller
	statuses  workers.StatusWriter
	forwarder Forwarder
	valkey    *redis.Client
	logger    zerolog.Logger
	tracer    trace.Tracer

	interval time.Duration
	pageSize int32
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithPageSize(n int32) Option {
	return func(p *Poller) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithCache enables best-effort transcript caching for the summarize stage.
func WithCache(valkey *redis.Client) Option {
	return func(p *Poller) {
		p.valkey = valkey
	}
}

func New(st *storage.Storage, sttCli OperationPoller, statuses workers.StatusWriter,
	forwarder Forwarder, logger zerolog.Logger, tracer trace.Tracer, opts ...Option) *Poller {
	p := &Poller{
		storage:   st,
		stt:       sttCli,
		statuses:  statuses,
		forwarder: forwarder,
		logger:    logger,
		tracer:    tracer,
		interval:  DefaultInterval,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ticks until the context is canceled. The first cycle starts
// immediately rather than one interval in.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Tick(ctx); err != nil {
			p.logger.Error().Err(err).Msg("poll cycle finished with errors")
		}

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller shutting down")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one poll cycle over every pending-operation marker. A failure on
// one marker never blocks the others; the returned error aggregates
// everything that went wrong in the cycle.
func (p *Poller) Tick(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "poller.tick")
	defer span.End()

	batch := ec.NewBatchErr()
	token := ""
	seen := 0
	for {
		ids, next, err := p.storage.Markers().ListPage(ctx, token, p.pageSize)
		if err != nil {
			batch.Add("list", err)
			break
		}

		for _, taskID := range ids {
			seen++
			if err := p.resolve(ctx, taskID); err != nil {
				p.logger.Error().
					Err(err).
					Stringer("task_id", taskID).
					Msg("failed to resolve pending operation, keeping marker")
				batch.Add(taskID.String(), err)
			}
		}

		if next == "" {
			break
		}
		token = next
	}

	span.SetAttributes(attribute.Int("markers", seen))
	if seen > 0 {
		p.logger.Info().Int("markers", seen).Msg("poll cycle complete")
	}
	return batch.ToError()
}

// resolve advances a single marker: pending keeps it, failure closes the
// task, success publishes the transcript and hands off to summarize.
func (p *Poller) resolve(ctx context.Context, taskID uuid.UUID) error {
	ctx, span := p.tracer.Start(ctx, "poller.resolve",
		trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	op, err := p.storage.Markers().Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, ec.ErrObjectNotFound) {
			// Concurrent cycle already resolved it.
			return nil
		}
		return err
	}

	result, err := p.stt.Poll(ctx, op.OperationID)
	if err != nil {
		// Transient or permanent, the marker stays; the next cycle retries
		// the side-effect-free query.
		span.RecordError(err)
		return err
	}

	switch result.State {
	case stt.OperationPending:
		return nil

	case stt.OperationFailed:
		p.logger.Warn().
			Stringer("task_id", taskID).
			Str("operation_id", op.OperationID).
			Str("reason", result.FailureReason).
			Msg("recognition failed")
		desc := RecognitionFailedDescription
		err := p.statuses.UpdateStatus(ctx, taskID, tasks.StatusError, &desc)
		if err != nil && !errors.Is(err, ec.ErrTerminalState) {
			return err
		}
		return p.storage.Markers().Delete(ctx, taskID)

	case stt.OperationDone:
		return p.finish(ctx, taskID, result.Payload)
	}
	return nil
}

// finish performs the completion sequence: transcript artifact, cache,
// summarize message, then marker deletion. A crash at any point loses
// nothing; the worst case is a duplicate summarize message, which that
// stage absorbs.
func (p *Poller) finish(ctx context.Context, taskID uuid.UUID, payload []byte) error {
	key := storage.TranscriptKey(taskID)

	exists, err := p.storage.Artifacts().Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		if err := p.storage.Artifacts().Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
			return err
		}
	}

	if p.valkey != nil {
		if err := p.valkey.Set(ctx, storage.TranscriptCacheKey(taskID),
			string(payload), TranscriptCacheTTL).Err(); err != nil {
			// Cache is an accelerator only; summarize falls back to the
			// artifact store.
			p.logger.Warn().
				Err(err).
				Stringer("task_id", taskID).
				Msg("failed to cache transcript")
		}
	}

	if err := p.forwarder.Publish(ctx, tasks.Summarize, tasks.SummarizePayload{
		TaskID:      taskID,
		ArtifactKey: key,
	}); err != nil {
		return err
	}

	p.logger.Info().
		Stringer("task_id", taskID).
		Str("key", key).
		Msg("transcript ready, handed off to summarize")
	return p.storage.Markers().Delete(ctx, taskID)
}
