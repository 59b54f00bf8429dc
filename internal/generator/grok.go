package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	defaultGrokBaseURL = "https://api.x.ai/v1"
	defaultGrokModel   = "grok-2-image"
)

// GrokOptions configures a GrokGenerator.
type GrokOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      RetryPolicy
}

// GrokGenerator talks to the x.ai image generation endpoint.
type GrokGenerator struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
	timeout    time.Duration
	retry      RetryPolicy
	downloader *Downloader
	log        zerolog.Logger
}

// NewGrokGenerator builds a client. A missing API key is not an error here;
// Generate reports ErrGeneratorUnavailable instead.
func NewGrokGenerator(opts GrokOptions, downloader *Downloader, log zerolog.Logger) *GrokGenerator {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultGrokBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultGrokModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GrokGenerator{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
		timeout:    timeout,
		retry:      opts.Retry,
		downloader: downloader,
		log:        log.With().Str("provider", "grok").Logger(),
	}
}

type grokRequest struct {
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Model          string `json:"model"`
	ResponseFormat string `json:"response_format"`
}

type grokResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
	Error json.RawMessage `json:"error"`
}

// errorMessage understands both {"error":{"message":"..."}} and {"error":"..."}.
func (r grokResponse) errorMessage() string {
	if len(r.Error) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}
	return string(r.Error)
}

// Generate implements Generator. The endpoint has no size parameter, so
// req.Size is not forwarded.
func (g *GrokGenerator) Generate(ctx context.Context, req Request) (*Output, error) {
	if g.token == "" {
		return nil, fmt.Errorf("grok: %w: api key is not set", ErrGeneratorUnavailable)
	}

	var imageURL, revised string
	err := g.retry.do(ctx, g.log, "generate", func() error {
		var err error
		imageURL, revised, err = g.call(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	var local string
	err = g.retry.do(ctx, g.log, "download", func() error {
		var err error
		local, err = g.downloader.Fetch(ctx, imageURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.log.Info().Str("owner_id", req.OwnerID).Str("path", local).Msg("image generated")
	return &Output{RevisedPrompt: revised, LocalPath: local}, nil
}

// Release implements Generator.
func (g *GrokGenerator) Release(localPath string) error {
	return g.downloader.Release(localPath)
}

func (g *GrokGenerator) call(ctx context.Context, req Request) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(grokRequest{
		Prompt:         req.Prompt,
		N:              normalizeCount(req.Count),
		Model:          g.model,
		ResponseFormat: "url",
	})
	if err != nil {
		return "", "", backoff.Permanent(fmt.Errorf("%w: encode request: %w", ErrProviderError, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", "", backoff.Permanent(fmt.Errorf("%w: build request: %w", ErrProviderError, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("%w: grok request: %w", ErrProviderError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("%w: read grok response: %w", ErrProviderError, err)
	}

	var out grokResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if decodeErr == nil {
			msg = out.errorMessage()
		}
		return "", "", &StatusError{Provider: "grok", StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", "", backoff.Permanent(fmt.Errorf("%w: decode grok response: %w", ErrProviderError, decodeErr))
	}
	if len(out.Data) == 0 || strings.TrimSpace(out.Data[0].URL) == "" {
		return "", "", fmt.Errorf("grok: %w", ErrEmptyResult)
	}
	return out.Data[0].URL, out.Data[0].RevisedPrompt, nil
}

var _ Generator = (*GrokGenerator)(nil)
