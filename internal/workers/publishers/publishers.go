// Package publishers provides the tracing-aware queue publisher used by the
// intake handler, the stage runner, and the status poller.
package publishers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const (
	MinRetryInterval = 500 * time.Millisecond
	MaxRetryTimes    = 5
)

type Publisher struct {
	name   string
	conn   *nats.Conn
	logger zerolog.Logger
	tracer trace.Tracer
}

func NewPublisher(name string, nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer) *Publisher {
	return &Publisher{name: name, conn: nc, logger: logger, tracer: tracer}
}

// Publish marshals payload and publishes it on subject, propagating the
// trace context through message headers. Transient publish failures are
// retried with exponential backoff before giving up.
func (p *Publisher) Publish(ctx context.Context, subject string,
	payload any, attrs ...attribute.KeyValue) error {
	attrs = append(attrs, attribute.String("subject", subject))
	ctx, span := p.tracer.Start(ctx, p.name+".Publish",
		trace.WithAttributes(attrs...))
	defer span.End()

	headers := nats.Header{}
	otel.GetTextMapPropagator().
		Inject(ctx, propagation.HeaderCarrier(headers))

	data, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return ec.New(ec.ECMarshalFailed, "failed to marshal queue payload").Warp(err)
	}

	msg := &nats.Msg{Subject: subject, Data: data, Header: headers}
	for retry := 0; ; retry++ {
		err = p.conn.PublishMsg(msg)
		if err == nil {
			return nil
		}
		if retry >= MaxRetryTimes {
			break
		}
		p.logger.Warn().
			Err(err).
			Str("subject", subject).
			Int("retry", retry).
			Msg("publish failed, retrying")
		time.Sleep(MinRetryInterval << time.Duration(retry))
	}

	span.RecordError(err)
	return ec.ErrQueuePublish.Clone().
		WithDetails("subject " + subject).
		Warp(err)
}
