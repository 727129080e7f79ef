package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/evoronina/konspekt/pkgs/utils"
	ec "github.com/evoronina/konspekt/pkgs/errors"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAI struct {
	client openai.Client
	model  string
}

type openAIBuilder struct {
	APIKey  string
	BaseURL string
	Model   string
	Extra   []option.RequestOption
}

type OpenAIOption func(*openAIBuilder) error

func WithOpenAIAPIKey(key string) OpenAIOption {
	return func(b *openAIBuilder) error {
		b.APIKey = key
		return nil
	}
}

func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(b *openAIBuilder) error {
		b.BaseURL = u
		return nil
	}
}

func WithOpenAIModel(model string) OpenAIOption {
	return func(b *openAIBuilder) error {
		b.Model = model
		return nil
	}
}

func WithOpenAIRequestOptions(opts ...option.RequestOption) OpenAIOption {
	return func(b *openAIBuilder) error {
		b.Extra = append(b.Extra, opts...)
		return nil
	}
}

func NewOpenAI(opts ...OpenAIOption) (*OpenAI, error) {
	b := &openAIBuilder{}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.APIKey == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(b.APIKey)}
	if b.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(b.BaseURL))
	}
	reqOpts = append(reqOpts, b.Extra...)

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  utils.DefaultIfZero(b.Model, DefaultOpenAIModel),
	}, nil
}

func (cli *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(cli.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := cli.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", ec.ErrTransientExternal.Clone().
			WithDetails("OpenAI completion failed").
			Warp(err)
	}
	if len(resp.Choices) == 0 {
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
