package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	ec "github.com/evoronina/konspekt/pkgs/errors"
	"github.com/evoronina/konspekt/pkgs/utils"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"
	GeminiAPIVersion   = "v1beta"
)

type Gemini struct {
	client *genai.Client
	model  string
}

type geminiBuilder struct {
	APIKey  string
	APIVer  string
	Model   string
	Timeout *time.Duration
}

type GeminiOption func(*geminiBuilder) error

func WithGeminiAPIKey(key string) GeminiOption {
	return func(b *geminiBuilder) error {
		b.APIKey = key
		return nil
	}
}

func WithGeminiModel(model string) GeminiOption {
	return func(b *geminiBuilder) error {
		b.Model = model
		return nil
	}
}

func WithGeminiAPIVersion(ver string) GeminiOption {
	return func(b *geminiBuilder) error {
		b.APIVer = ver
		return nil
	}
}

func WithGeminiTimeout(timeout time.Duration) GeminiOption {
	return func(b *geminiBuilder) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		b.Timeout = &timeout
		return nil
	}
}

func NewGemini(ctx context.Context, opts ...GeminiOption) (*Gemini, error) {
	b := &geminiBuilder{}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.APIKey == "" {
		return nil, fmt.Errorf("missing Gemini API key")
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  b.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: utils.DefaultIfZero(b.APIVer, GeminiAPIVersion),
			Timeout:    b.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Gemini API client: %w", err)
	}

	return &Gemini{
		client: cli,
		model:  utils.DefaultIfZero(b.Model, DefaultGeminiModel),
	}, nil
}

func (cli *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	resp, err := cli.client.Models.GenerateContent(ctx, cli.model,
		genai.Text(req.User), cfg)
	if err != nil {
		return "", ec.ErrTransientExternal.Clone().
			WithDetails("Gemini completion failed").
			Warp(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails("Gemini returned an empty completion")
	}
	return text, nil
}
