// Package subscribers contains the concrete pipeline stage handlers.
package subscribers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/evoronina/konspekt/internal/disk"
	"github.com/evoronina/konspekt/internal/global"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/workers"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const (
	DownloadWorkerDurableName = "download-worker"

	// RejectedLinkDescription is the only detail shown to the user when a
	// link cannot be processed. Internals never leak through it.
	RejectedLinkDescription = "link does not lead to a public video"

	downloadSpanResolve = "download.link.resolve"
	downloadSpanFetch   = "download.video.fetch"
	downloadSpanUpload  = "download.video.upload"
)

// DownloadWorker fetches the shared video behind a task's link and uploads
// it to the artifact store.
type DownloadWorker struct {
	workers.BaseWorker
	storage *storage.Storage
	disk    *disk.Client
	httpCli *http.Client
}

func NewDownloadWorker(nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer,
	db *storage.Storage, diskCli *disk.Client) (*DownloadWorker, error) {
	base, err := workers.NewBaseWorker(nc, logger, tracer)
	if err != nil {
		return nil, err
	}
	return &DownloadWorker{
		BaseWorker: *base,
		storage:    db,
		disk:       diskCli,
		httpCli:    &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

func (w *DownloadWorker) Subject() string {
	return tasks.Download
}

func (w *DownloadWorker) ConsumerConfig() *nats.ConsumerConfig {
	return &nats.ConsumerConfig{
		Name:       global.StreamName,
		Durable:    DownloadWorkerDurableName,
		AckPolicy:  nats.AckExplicitPolicy,
		MaxDeliver: 5,
	}
}

func (w *DownloadWorker) Handle(ctx context.Context, msg *nats.Msg) (workers.Result, error) {
	var cmd tasks.DownloadPayload
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		w.Logger.Error().
			Err(err).
			Str("message", string(msg.Data)).
			Msg("malformed download payload")
		return workers.Result{}, ec.ErrValidationFailed.Clone().
			WithDetails("malformed download payload").
			Warp(workers.ErrMalformedMessage)
	}

	log := w.Logger.With().Stringer("task_id", cmd.TaskID).Logger()

	// Resolve the share link. Anything other than a public video file ends
	// the task with a fixed user-facing description.
	var downloadURL string
	err := func(ctx context.Context) error {
		rCtx, span := w.Tracer.Start(ctx, downloadSpanResolve)
		defer span.End()

		ok, err := w.disk.IsPublicVideo(rCtx, cmd.VideoURL)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !ok {
			return ec.ErrPermanentExternal.Clone().
				WithDetails("share link is not a public video file")
		}

		downloadURL, err = w.disk.ResolveDownloadURL(rCtx, cmd.VideoURL)
		if err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	}(ctx)
	if err != nil {
		if ec.IsTransient(err) {
			return workers.Result{}, err
		}
		log.Warn().Err(err).Str("video_url", cmd.VideoURL).Msg("rejecting share link")
		return workers.Terminate(cmd.TaskID, tasks.StatusError, RejectedLinkDescription), nil
	}

	// The task is visibly in flight from here on. A redelivered message
	// finds the row already at Processing, which the store absorbs.
	if err := w.storage.Task().UpdateStatus(ctx, cmd.TaskID, tasks.StatusProcessing, nil); err != nil {
		if !ec.IsTransient(err) {
			log.Warn().Err(err).Msg("task no longer accepts processing, dropping")
			return workers.Done(), nil
		}
		return workers.Result{}, err
	}

	var resp *http.Response
	err = func(ctx context.Context) error {
		fCtx, span := w.Tracer.Start(ctx, downloadSpanFetch)
		defer span.End()

		req, err := http.NewRequestWithContext(fCtx, http.MethodGet, downloadURL, nil)
		if err != nil {
			span.RecordError(err)
			return err
		}
		resp, err = w.httpCli.Do(req)
		if err != nil {
			span.RecordError(err)
			return ec.ErrTransientExternal.Clone().
				WithDetails("video download failed").
				Warp(err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			err = ec.ErrTransientExternal.Clone().
				WithDetails("video download returned " + resp.Status)
			span.RecordError(err)
			return err
		}
		return nil
	}(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch video")
		return workers.Result{}, err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	key := storage.VideoKey(cmd.TaskID)
	err = func(ctx context.Context) error {
		uCtx, span := w.Tracer.Start(ctx, downloadSpanUpload)
		defer span.End()

		// The body streams straight into the object store; lecture videos
		// never sit in worker memory. Deterministic key: a redelivered
		// message overwrites the same object instead of duplicating it.
		if err := w.storage.Artifacts().Put(uCtx, key, resp.Body, contentType); err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	}(ctx)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to upload video")
		return workers.Result{}, err
	}

	log.Info().
		Str("key", key).
		Int64("size", resp.ContentLength).
		Msg("video stored, handing off to recognition")
	return workers.Advance(tasks.Recognize, tasks.RecognizePayload{
		TaskID:      cmd.TaskID,
		ArtifactKey: key,
	}), nil
}
