// Package router exposes the intake HTTP surface: the submission form
// endpoint, the task listing, and the static pages.
package router

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evoronina/konspekt/internal/storage"
)

// Publisher is the slice of the queue publisher the intake handler needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any, attrs ...attribute.KeyValue) error
}

// Repo bundles what the handlers need: the task store, the queue publisher,
// and the ambient logging/tracing/validation plumbing.
type Repo struct {
	Storage   storage.Storage
	Publisher Publisher
	Logger    zerolog.Logger
	Tracer    trace.Tracer
	Validate  *validator.Validate
}

func NewRepo(s storage.Storage, publisher Publisher,
	logger zerolog.Logger, tracer trace.Tracer, validate *validator.Validate) *Repo {
	return &Repo{
		Storage:   s,
		Publisher: publisher,
		Logger:    logger,
		Tracer:    tracer,
		Validate:  validate,
	}
}

// New builds the ServeMux for the intake binary. staticDir holds the form
// and listing pages.
func New(repo *Repo, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/tasks", repo.CreateTask)
	mux.HandleFunc("GET /api/tasks", repo.ListTasks)

	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}
