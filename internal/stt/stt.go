// Package stt submits asynchronous speech recognition operations and polls
// their progress.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ec "github.com/evoronina/konspekt/pkgs/errors"
	"github.com/evoronina/konspekt/pkgs/utils"
)

const (
	DefaultBaseURL = "https://stt.api.cloud.yandex.net"

	recognizePath = "/stt/v3/recognizeFileAsync"
	getResultPath = "/stt/v3/getRecognition"

	DefaultModel = "general"
)

// OperationState is the poller-visible state of a recognition operation.
type OperationState int

const (
	OperationPending OperationState = iota
	OperationDone
	OperationFailed
)

// OperationResult is the outcome of one status query. Payload holds the
// conspectus JSON produced by the service's summarization step when the
// state is OperationDone; FailureReason is set when it is OperationFailed.
type OperationResult struct {
	State         OperationState
	Payload       []byte
	FailureReason string
}

// Client talks to the SpeechKit v3 REST API.
type Client struct {
	apiKey   string
	folderID string
	baseURL  string
	model    string
	summary  string
	httpCli  *http.Client
}

type builder struct {
	APIKey   string
	FolderID string
	BaseURL  string
	Model    string
	HTTPCli  *http.Client
	Timeout  time.Duration
}

type Option func(*builder) error

func WithAPIKey(key string) Option {
	return func(b *builder) error {
		b.APIKey = key
		return nil
	}
}

func WithFolderID(id string) Option {
	return func(b *builder) error {
		b.FolderID = id
		return nil
	}
}

func WithBaseURL(u string) Option {
	return func(b *builder) error {
		b.BaseURL = u
		return nil
	}
}

func WithModel(model string) Option {
	return func(b *builder) error {
		b.Model = model
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(b *builder) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		b.Timeout = timeout
		return nil
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(b *builder) error {
		b.HTTPCli = c
		return nil
	}
}

func New(opts ...Option) (*Client, error) {
	b := &builder{}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if b.APIKey == "" {
		return nil, fmt.Errorf("SpeechKit API key is required")
	}
	if b.FolderID == "" {
		return nil, fmt.Errorf("folder id is required")
	}

	httpCli := b.HTTPCli
	if httpCli == nil {
		httpCli = &http.Client{
			Timeout: utils.DefaultIfZero(b.Timeout, 30*time.Second),
		}
	}

	cli := &Client{
		apiKey:   b.APIKey,
		folderID: b.FolderID,
		baseURL:  strings.TrimRight(utils.DefaultIfZero(b.BaseURL, DefaultBaseURL), "/"),
		model:    utils.DefaultIfZero(b.Model, DefaultModel),
		httpCli:  httpCli,
	}
	cli.summary = ConspectusInstruction()
	return cli, nil
}

type recognizeRequest struct {
	URI              string           `json:"uri"`
	RecognitionModel recognitionModel `json:"recognitionModel"`
	Summarization    summarization    `json:"summarization"`
}

type recognitionModel struct {
	Model               string              `json:"model"`
	AudioFormat         audioFormat         `json:"audioFormat"`
	LanguageRestriction languageRestriction `json:"languageRestriction"`
}

type audioFormat struct {
	ContainerAudio containerAudio `json:"containerAudio"`
}

type containerAudio struct {
	ContainerAudioType string `json:"containerAudioType"`
}

type languageRestriction struct {
	RestrictionType string   `json:"restrictionType"`
	LanguageCode    []string `json:"languageCode"`
}

type summarization struct {
	ModelURI   string                 `json:"modelUri"`
	Properties []summarizationRequest `json:"properties"`
}

type summarizationRequest struct {
	Instruction string `json:"instruction"`
	JSONObject  bool   `json:"jsonObject"`
}

// Submit starts an asynchronous recognition (with summarization) of the
// audio track behind sourceURL and returns the service's operation id.
func (c *Client) Submit(ctx context.Context, sourceURL string) (string, error) {
	payload := recognizeRequest{
		URI: sourceURL,
		RecognitionModel: recognitionModel{
			Model: c.model,
			AudioFormat: audioFormat{
				ContainerAudio: containerAudio{ContainerAudioType: "MP3"},
			},
			LanguageRestriction: languageRestriction{
				RestrictionType: "WHITELIST",
				LanguageCode:    []string{"ru-RU", "en-US"},
			},
		},
		Summarization: summarization{
			ModelURI: fmt.Sprintf("gpt://%s/qwen3-235b-a22b-fp8/latest", c.folderID),
			Properties: []summarizationRequest{
				{Instruction: c.summary, JSONObject: true},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", ec.New(ec.ECMarshalFailed, "failed to marshal recognition request").Warp(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+recognizePath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return "", ec.ErrTransientExternal.Clone().
			WithDetails("recognition api unreachable").
			Warp(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails(fmt.Sprintf("recognition api returned %d: %s",
				resp.StatusCode, string(raw)))
	default:
		return "", ec.ErrTransientExternal.Clone().
			WithDetails(fmt.Sprintf("recognition api returned %d", resp.StatusCode))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails("recognition api returned malformed response").
			Warp(err)
	}
	if out.ID == "" {
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails("recognition api returned no operation id")
	}
	return out.ID, nil
}

// Poll queries the state of a previously submitted operation. The query is
// idempotent and side-effect free; the same operation may be polled any
// number of times.
func (c *Client) Poll(ctx context.Context, operationID string) (OperationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+getResultPath+"?operationId="+operationID, nil)
	if err != nil {
		return OperationResult{}, err
	}
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return OperationResult{}, ec.ErrTransientExternal.Clone().
			WithDetails("recognition api unreachable").
			Warp(err)
	}
	defer resp.Body.Close()

	// The service answers 404 until the operation has produced output.
	if resp.StatusCode == http.StatusNotFound {
		return OperationResult{State: OperationPending}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return OperationResult{}, ec.ErrTransientExternal.Clone().
			WithDetails(fmt.Sprintf("recognition api returned %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return OperationResult{}, ec.ErrTransientExternal.Clone().Warp(err)
	}

	return parseRecognition(raw)
}

// parseRecognition interprets the newline-delimited JSON stream returned by
// getRecognition. The final line carries either the summarization result or
// a terminal error.
func parseRecognition(raw []byte) (OperationResult, error) {
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	last := lines[len(lines)-1]
	if strings.TrimSpace(last) == "" {
		return OperationResult{State: OperationPending}, nil
	}

	var envelope struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Result struct {
			Summarization struct {
				Results []struct {
					Response string `json:"response"`
				} `json:"results"`
			} `json:"summarization"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(last), &envelope); err != nil {
		return OperationResult{}, ec.ErrRecognition.Clone().
			WithDetails("malformed recognition response").
			Warp(err)
	}

	if envelope.Error != nil {
		return OperationResult{
			State:         OperationFailed,
			FailureReason: envelope.Error.Message,
		}, nil
	}

	results := envelope.Result.Summarization.Results
	if len(results) == 0 || results[0].Response == "" {
		// Transcription chunks without the final summarization line; the
		// operation is still running.
		return OperationResult{State: OperationPending}, nil
	}

	// The response field is itself a JSON document (jsonObject: true).
	payload := []byte(results[0].Response)
	if !json.Valid(payload) {
		return OperationResult{}, ec.ErrRecognition.Clone().
			WithDetails("summarization payload is not valid JSON")
	}
	return OperationResult{State: OperationDone, Payload: payload}, nil
}
