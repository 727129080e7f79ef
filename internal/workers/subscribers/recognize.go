package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/evoronina/konspekt/internal/global"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/stt"
	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/workers"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const (
	RecognizeWorkerDurableName = "recognize-worker"

	// RecognitionFailedDescription is shown to the user when the speech
	// service rejects a submission outright.
	RecognitionFailedDescription = "speech recognition could not be started"

	recognizeSpanMarker = "recognize.marker.check"
	recognizeSpanSubmit = "recognize.operation.submit"
)

// RecognizeWorker starts one asynchronous recognition operation per task and
// records it as a marker for the status poller. An existing marker is always
// reused: the stage never starts a second operation for the same task, no
// matter how many times its message is delivered.
type RecognizeWorker struct {
	workers.BaseWorker
	storage   *storage.Storage
	stt       *stt.Client
	publicURL func(key string) string
}

// NewRecognizeWorker builds the stage. publicURL derives the externally
// reachable object URL the speech service downloads the audio from.
func NewRecognizeWorker(nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer,
	db *storage.Storage, sttCli *stt.Client, publicURL func(key string) string) (*RecognizeWorker, error) {
	base, err := workers.NewBaseWorker(nc, logger, tracer)
	if err != nil {
		return nil, err
	}
	return &RecognizeWorker{
		BaseWorker: *base,
		storage:    db,
		stt:        sttCli,
		publicURL:  publicURL,
	}, nil
}

func (w *RecognizeWorker) Subject() string {
	return tasks.Recognize
}

func (w *RecognizeWorker) ConsumerConfig() *nats.ConsumerConfig {
	return &nats.ConsumerConfig{
		Name:       global.StreamName,
		Durable:    RecognizeWorkerDurableName,
		AckPolicy:  nats.AckExplicitPolicy,
		MaxDeliver: 5,
	}
}

func (w *RecognizeWorker) Handle(ctx context.Context, msg *nats.Msg) (workers.Result, error) {
	var cmd tasks.RecognizePayload
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		w.Logger.Error().
			Err(err).
			Str("message", string(msg.Data)).
			Msg("malformed recognize payload")
		return workers.Result{}, ec.ErrValidationFailed.Clone().
			WithDetails("malformed recognize payload").
			Warp(workers.ErrMalformedMessage)
	}

	log := w.Logger.With().Stringer("task_id", cmd.TaskID).Logger()

	// Marker check comes before any external call. A live marker means an
	// operation is already running for this task.
	mCtx, mSpan := w.Tracer.Start(ctx, recognizeSpanMarker)
	op, err := w.storage.Markers().Get(mCtx, cmd.TaskID)
	mSpan.End()
	switch {
	case err == nil:
		log.Info().
			Str("operation_id", op.OperationID).
			Msg("recognition already submitted, reusing operation")
		return workers.Done(), nil
	case errors.Is(err, ec.ErrObjectNotFound):
		// No operation yet; submit one below.
	default:
		return workers.Result{}, err
	}

	sCtx, sSpan := w.Tracer.Start(ctx, recognizeSpanSubmit)
	operationID, err := w.stt.Submit(sCtx, w.publicURL(cmd.ArtifactKey))
	sSpan.End()
	if err != nil {
		if ec.IsTransient(err) {
			return workers.Result{}, err
		}
		log.Error().Err(err).Msg("speech service rejected the submission")
		return workers.Terminate(cmd.TaskID, tasks.StatusError, RecognitionFailedDescription), nil
	}

	if err := w.storage.Markers().Put(ctx, tasks.PendingOperation{
		TaskID:            cmd.TaskID,
		OperationID:       operationID,
		SourceArtifactKey: cmd.ArtifactKey,
		SubmittedAt:       time.Now().UTC(),
	}); err != nil {
		// The operation is running but unrecorded. Redelivery finds no
		// marker and submits a second operation; that duplicate is the
		// accepted cost of this crash window under at-least-once delivery.
		log.Error().Err(err).Str("operation_id", operationID).Msg("failed to record pending operation")
		return workers.Result{}, err
	}

	log.Info().
		Str("operation_id", operationID).
		Msg("recognition submitted, poller will pick up the result")
	return workers.Done(), nil
}
