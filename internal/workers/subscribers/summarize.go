package subscribers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/evoronina/konspekt/internal/global"
	"github.com/evoronina/konspekt/internal/llm"
	"github.com/evoronina/konspekt/internal/render"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/workers"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const (
	SummarizeWorkerDurableName = "summarize-worker"

	// RenderFailedDescription is shown to the user when the document cannot
	// be produced from a finished transcript.
	RenderFailedDescription = "could not build the lecture notes document"

	summarizeSpanLoad   = "summarize.transcript.load"
	summarizeSpanLLM    = "summarize.completion"
	summarizeSpanRender = "summarize.render"
	summarizeSpanUpload = "summarize.upload"
)

// summarizeSystemPrompt asks for a full standalone HTML document. The model
// answer is normalized afterwards, so minor formatting drift is tolerated.
const summarizeSystemPrompt = `Ты оформляешь конспект лекции. ` +
	`На вход подаётся JSON с конспектом (topic, sections, key_takeaways). ` +
	`Сгенерируй полный HTML-документ конспекта на русском языке: ` +
	`заголовок лекции в <h1>, разделы в <h2> с абзацами <p>, ` +
	`примеры списками <ul>, ключевые выводы отдельным разделом в конце. ` +
	`Ответь только HTML-документом, без пояснений и без markdown.`

// documentRenderer produces the final document bytes from normalized HTML.
type documentRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// SummarizeWorker turns a finished transcript into the final PDF and closes
// the task. Every step is idempotent: the object keys are deterministic and
// the terminal status write absorbs repeats.
type SummarizeWorker struct {
	workers.BaseWorker
	storage   *storage.Storage
	valkey    *redis.Client
	completer llm.Completer
	renderer  documentRenderer
}

func NewSummarizeWorker(nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer,
	db *storage.Storage, valkey *redis.Client, completer llm.Completer) (*SummarizeWorker, error) {
	base, err := workers.NewBaseWorker(nc, logger, tracer)
	if err != nil {
		return nil, err
	}
	return &SummarizeWorker{
		BaseWorker: *base,
		storage:    db,
		valkey:     valkey,
		completer:  completer,
		renderer:   render.NewRenderer(),
	}, nil
}

func (w *SummarizeWorker) Subject() string {
	return tasks.Summarize
}

func (w *SummarizeWorker) ConsumerConfig() *nats.ConsumerConfig {
	return &nats.ConsumerConfig{
		Name:       global.StreamName,
		Durable:    SummarizeWorkerDurableName,
		AckPolicy:  nats.AckExplicitPolicy,
		MaxDeliver: 5,
	}
}

func (w *SummarizeWorker) Handle(ctx context.Context, msg *nats.Msg) (workers.Result, error) {
	var cmd tasks.SummarizePayload
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		w.Logger.Error().
			Err(err).
			Str("message", string(msg.Data)).
			Msg("malformed summarize payload")
		return workers.Result{}, ec.ErrValidationFailed.Clone().
			WithDetails("malformed summarize payload").
			Warp(workers.ErrMalformedMessage)
	}

	log := w.Logger.With().Stringer("task_id", cmd.TaskID).Logger()

	task, err := w.storage.Task().Get(ctx, cmd.TaskID)
	if err != nil {
		if errors.Is(err, ec.ErrNotFound) {
			log.Error().Msg("summarize message for unknown task, dropping")
			return workers.Result{}, ec.ErrValidationFailed.Clone().
				WithDetails("unknown task").
				Warp(workers.ErrMalformedMessage)
		}
		return workers.Result{}, err
	}

	transcript, err := w.loadTranscript(ctx, cmd, log)
	if err != nil {
		if errors.Is(err, ec.ErrObjectNotFound) {
			// The transcript is written before this message is published,
			// so a missing object means it is genuinely gone.
			log.Error().Str("key", cmd.ArtifactKey).Msg("transcript artifact lost")
			return workers.Terminate(cmd.TaskID, tasks.StatusError, RenderFailedDescription), nil
		}
		return workers.Result{}, err
	}

	lCtx, lSpan := w.Tracer.Start(ctx, summarizeSpanLLM)
	completion, err := w.completer.Complete(lCtx, llm.Request{
		System: summarizeSystemPrompt,
		User:   string(transcript),
	})
	lSpan.End()
	if err != nil {
		if ec.IsTransient(err) {
			return workers.Result{}, err
		}
		log.Error().Err(err).Msg("completion rejected permanently")
		return workers.Terminate(cmd.TaskID, tasks.StatusError, RenderFailedDescription), nil
	}

	var pdf []byte
	err = func(ctx context.Context) error {
		rCtx, span := w.Tracer.Start(ctx, summarizeSpanRender)
		defer span.End()

		html, err := render.NormalizeHTML(completion, task.LectureTitle)
		if err != nil {
			span.RecordError(err)
			return err
		}
		pdf, err = w.renderer.RenderPDF(rCtx, html)
		if err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	}(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to render document")
		return workers.Terminate(cmd.TaskID, tasks.StatusError, RenderFailedDescription), nil
	}

	key := storage.PDFKey(task.TaskID, task.LectureTitle)
	uCtx, uSpan := w.Tracer.Start(ctx, summarizeSpanUpload)
	err = w.storage.Artifacts().Put(uCtx, key, bytes.NewReader(pdf), "application/pdf")
	uSpan.End()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to upload document")
		return workers.Result{}, err
	}

	log.Info().Str("key", key).Int("size", len(pdf)).Msg("lecture notes rendered")
	return workers.Terminate(cmd.TaskID, tasks.StatusDone, key), nil
}

// loadTranscript prefers the cache the poller fills and falls back to the
// artifact store, which is authoritative.
func (w *SummarizeWorker) loadTranscript(ctx context.Context,
	cmd tasks.SummarizePayload, log zerolog.Logger) ([]byte, error) {
	ctx, span := w.Tracer.Start(ctx, summarizeSpanLoad)
	defer span.End()

	if w.valkey != nil {
		cached, err := w.valkey.Get(ctx, storage.TranscriptCacheKey(cmd.TaskID)).Result()
		if err == nil && strings.TrimSpace(cached) != "" {
			return []byte(cached), nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("transcript cache unavailable, reading artifact")
		}
	}

	transcript, err := w.storage.Artifacts().Get(ctx, cmd.ArtifactKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return transcript, nil
}
