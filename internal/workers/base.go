package workers

import (
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// BaseWorker bundles the dependencies every stage needs. Embed it into
// concrete handlers to cut boilerplate.
type BaseWorker struct {
	NatsConn  *nats.Conn
	JetStream nats.JetStreamContext
	Logger    zerolog.Logger
	Tracer    trace.Tracer
}

func NewBaseWorker(nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer) (*BaseWorker, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &BaseWorker{
		NatsConn:  nc,
		JetStream: js,
		Logger:    logger,
		Tracer:    tracer,
	}, nil
}
