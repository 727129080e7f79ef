package llm

import (
	"context"
	"fmt"

	"github.com/evoronina/konspekt/internal/global"
)

// FromConfig builds the configured provider.
func FromConfig(ctx context.Context, cfg *global.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(
			WithOpenAIAPIKey(cfg.OpenAI.APIKey),
			WithOpenAIBaseURL(cfg.OpenAI.BaseURL),
			WithOpenAIModel(cfg.OpenAI.Model),
		)
	case ProviderGemini:
		opts := []GeminiOption{
			WithGeminiAPIKey(cfg.Gemini.APIKey),
			WithGeminiModel(cfg.Gemini.Model),
		}
		if cfg.Gemini.Timeout > 0 {
			opts = append(opts, WithGeminiTimeout(cfg.Gemini.Timeout))
		}
		return NewGemini(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
