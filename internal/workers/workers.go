// Package workers contains the queue consumer runtime shared by all
// pipeline stages.
package workers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/evoronina/konspekt/internal/tasks"
)

// ErrMalformedMessage marks a payload that can never be processed. The
// runner drops such messages instead of redelivering them.
var ErrMalformedMessage = errors.New("malformed message")

// Handler is the contract every pipeline stage implements. Handle inspects
// one message and reports what should happen next; it never publishes or
// acknowledges anything itself.
type Handler interface {
	// Subject returns the NATS subject the stage consumes.
	Subject() string

	// ConsumerConfig returns the JetStream consumer configuration for the
	// pull subscription.
	ConsumerConfig() *nats.ConsumerConfig

	// Handle processes a single message. A returned error means the stage
	// could not decide an outcome; transient errors are redelivered,
	// permanent ones are dropped.
	Handle(ctx context.Context, msg *nats.Msg) (Result, error)
}

// Healther lets a stage override the default health endpoints.
type Healther interface {
	HealthCheck(w http.ResponseWriter, r *http.Request)
	Ready(w http.ResponseWriter, r *http.Request)
}

// Metricker lets a stage override the default metrics endpoint.
type Metricker interface {
	Metric(w http.ResponseWriter, r *http.Request)
}

// Kind tags the outcome of one stage invocation.
type Kind int

const (
	KindDone Kind = iota
	KindAdvance
	KindTerminate
	KindDefer
)

// Result is the outcome of one stage invocation. The runner translates it
// into queue and store side effects, so a stage that crashed mid-handle
// leaves nothing half-published.
type Result struct {
	Kind Kind

	// KindAdvance
	NextSubject string
	NextPayload any

	// KindTerminate
	TaskID      uuid.UUID
	Status      tasks.Status
	Description string

	// KindDefer
	Delay time.Duration
}

// Done acknowledges the message with no further action. Used by stages whose
// effect is an external side channel rather than a queue hand-off.
func Done() Result {
	return Result{Kind: KindDone}
}

// Advance acknowledges the message and publishes payload on subject.
func Advance(subject string, payload any) Result {
	return Result{Kind: KindAdvance, NextSubject: subject, NextPayload: payload}
}

// Terminate moves the task to a terminal status and acknowledges the
// message. The description is stored alongside the status.
func Terminate(taskID uuid.UUID, status tasks.Status, description string) Result {
	return Result{Kind: KindTerminate, TaskID: taskID, Status: status, Description: description}
}

// Defer redelivers the message after the given delay without counting it as
// a failure.
func Defer(delay time.Duration) Result {
	return Result{Kind: KindDefer, Delay: delay}
}
