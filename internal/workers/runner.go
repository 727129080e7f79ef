package workers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/evoronina/konspekt/internal/workers/publishers"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

// StatusWriter is the slice of the task store the runner needs to finalize
// tasks. A nil description leaves the stored description untouched.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, taskID uuid.UUID, status tasks.Status, description *string) error
}

// Runner manages the lifecycle of one stage: the pull subscription, message
// fetching, outcome side effects, health checks, and graceful shutdown.
type Runner struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	logger    zerolog.Logger
	tracer    trace.Tracer
	worker    Handler
	publisher *publishers.Publisher
	statuses  StatusWriter
	options   Options
}

func NewRunner(nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer,
	w Handler, statuses StatusWriter, opts ...Option) (*Runner, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		nc:        nc,
		js:        js,
		logger:    logger,
		tracer:    tracer,
		worker:    w,
		publisher: publishers.NewPublisher("runner", nc, logger, tracer),
		statuses:  statuses,
		options: Options{
			Timeout:         120 * time.Second,
			RetryDelay:      10 * time.Second,
			HealthCheckPort: 8081,
		},
	}

	for _, opt := range opts {
		if err := opt(&r.options); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// fetchBackoff doubles per consecutive fetch failure up to two minutes.
// retry grows without bound, so the shift is capped before it can wrap.
func fetchBackoff(retry int) time.Duration {
	return time.Duration(min(1<<min(retry, 7), 120)) * time.Second
}

// Run starts the stage and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	go r.startHealthCheckServer()

	config := r.worker.ConsumerConfig()
	sub, err := r.js.PullSubscribe(
		r.worker.Subject(),
		config.Durable,
		nats.BindStream(config.Name))
	if err != nil {
		return ec.ErrQueuePublish.Clone().
			WithDetails("failed to create pull subscription").
			Warp(err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	r.logger.Info().
		Str("subject", r.worker.Subject()).
		Str("durable", config.Durable).
		Str("name", config.Name).
		Msg("runner started, waiting for messages...")

	retry := 0
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().
				Dur("uptime", time.Since(start)).
				Msg("runner shutting down gracefully...")
			sub.Unsubscribe()
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(1, nats.MaxWait(5*time.Second))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					retry = 0
					continue
				}
				wait := fetchBackoff(retry)
				r.logger.Error().
					Err(err).
					Int("retry", retry).
					Dur("wait", wait).
					Msg("failed to fetch messages")
				time.Sleep(wait)
				retry++
				continue
			}
			retry = 0
			for _, msg := range msgs {
				r.processMessage(ctx, msg)
			}
		}
	}
}

// processMessage runs the handler and applies its outcome to the queue and
// the task store.
func (r *Runner) processMessage(ctx context.Context, msg *nats.Msg) {
	pCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Header))
	sCtx, span := r.tracer.Start(pCtx, msg.Subject, trace.WithAttributes(
		attribute.String("nats.subject", msg.Subject),
	))
	defer span.End()

	tCtx, cancel := context.WithTimeout(sCtx, r.options.Timeout)
	defer cancel()

	result, err := r.worker.Handle(tCtx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))

		if errors.Is(err, ErrMalformedMessage) || !ec.IsTransient(err) {
			// Redelivery cannot fix a permanent failure; drop the message.
			r.logger.Error().Err(err).Msg("permanent handler failure, dropping message")
			r.ack(span, msg)
			return
		}

		r.logger.Error().Err(err).Msg("transient handler failure, sending NAK")
		if nakErr := msg.NakWithDelay(r.options.RetryDelay); nakErr != nil {
			r.logger.Error().Err(nakErr).Msg("failed to send NAK")
		}
		return
	}

	switch result.Kind {
	case KindDefer:
		span.SetAttributes(attribute.Bool("deferred", true))
		if nakErr := msg.NakWithDelay(result.Delay); nakErr != nil {
			r.logger.Error().Err(nakErr).Msg("failed to defer message")
		}
		return

	case KindAdvance:
		if err := r.publisher.Publish(tCtx, result.NextSubject, result.NextPayload); err != nil {
			span.RecordError(err)
			r.logger.Error().
				Err(err).
				Str("next_subject", result.NextSubject).
				Msg("failed to publish next stage, sending NAK")
			if nakErr := msg.NakWithDelay(r.options.RetryDelay); nakErr != nil {
				r.logger.Error().Err(nakErr).Msg("failed to send NAK")
			}
			return
		}

	case KindTerminate:
		var desc *string
		if result.Description != "" {
			desc = &result.Description
		}
		err := r.statuses.UpdateStatus(tCtx, result.TaskID, result.Status, desc)
		if err != nil && !errors.Is(err, ec.ErrTerminalState) {
			span.RecordError(err)
			r.logger.Error().
				Err(err).
				Stringer("task_id", result.TaskID).
				Stringer("status", result.Status).
				Msg("failed to finalize task, sending NAK")
			if nakErr := msg.NakWithDelay(r.options.RetryDelay); nakErr != nil {
				r.logger.Error().Err(nakErr).Msg("failed to send NAK")
			}
			return
		}
	}

	r.ack(span, msg)
}

func (r *Runner) ack(span trace.Span, msg *nats.Msg) {
	if ackErr := msg.Ack(); ackErr != nil {
		span.RecordError(ackErr)
		span.SetAttributes(
			attribute.Bool("success", false),
			attribute.String("ack_error", ackErr.Error()))
		r.logger.Error().Err(ackErr).Msg("failed to send ACK")
		return
	}
	span.SetAttributes(attribute.Bool("success", true))
	r.logger.Info().Msg("message processed and ACKed")
}

// startHealthCheckServer starts the HTTP server for health and metric
// endpoints, preferring handlers the stage provides itself.
func (r *Runner) startHealthCheckServer() {
	mux := http.NewServeMux()

	if h, ok := r.worker.(Healther); ok {
		mux.HandleFunc("/healthz", h.HealthCheck)
		mux.HandleFunc("/readyz", h.Ready)
	} else {
		mux.HandleFunc("/healthz", r.defaultHealthCheck)
		mux.HandleFunc("/readyz", r.defaultReadyCheck)
	}

	if m, ok := r.worker.(Metricker); ok {
		mux.HandleFunc("/metrics", m.Metric)
	} else {
		mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	}

	addr := fmt.Sprintf("%s:%d", r.options.HealthCheckHost, r.options.HealthCheckPort)
	r.logger.Info().
		Int("health_check_port", r.options.HealthCheckPort).
		Msg("health check server starting")
	if err := http.ListenAndServe(addr, mux); err != nil {
		r.logger.Error().Err(err).Msg("health check server failed")
	}
}

func (r *Runner) defaultHealthCheck(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(ec.Success.HttpStatusCode)
	_ = ec.Success.MarshalAndWriteTo(w)
}

func (r *Runner) defaultReadyCheck(w http.ResponseWriter, req *http.Request) {
	if !r.nc.IsConnected() {
		e := ec.ErrQueuePublish
		r.logger.Error().Str("remote_addr", req.RemoteAddr).Err(e).Msg("queue connection lost")
		w.Header().Add("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(e.HttpStatusCode)
		_ = e.MarshalAndWriteTo(w)
		return
	}

	w.WriteHeader(ec.Success.HttpStatusCode)
	_ = ec.Success.MarshalAndWriteTo(w)
}
