// Package llm abstracts the chat model used to turn a conspectus into a
// printable HTML document.
package llm

import "context"

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Request carries one completion exchange. System sets the behavior of the
// model, User carries the content to transform.
type Request struct {
	System          string
	User            string
	Temperature     float64
	MaxOutputTokens int
}

// Completer produces a single text completion. Implementations are safe for
// concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
