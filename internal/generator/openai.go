package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAIGenerator.
type OpenAIOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      RetryPolicy
}

// OpenAIGenerator generates images through the OpenAI images API.
type OpenAIGenerator struct {
	client     *openai.Client
	hasKey     bool
	model      string
	timeout    time.Duration
	retry      RetryPolicy
	downloader *Downloader
	log        zerolog.Logger
}

// NewOpenAIGenerator builds a go-openai client for image generation.
func NewOpenAIGenerator(opts OpenAIOptions, downloader *Downloader, log zerolog.Logger) *OpenAIGenerator {
	key := strings.TrimSpace(opts.APIKey)
	clientConfig := openai.DefaultConfig(key)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		clientConfig.HTTPClient = opts.HTTPClient
	}

	model := opts.Model
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &OpenAIGenerator{
		client:     openai.NewClientWithConfig(clientConfig),
		hasKey:     key != "",
		model:      model,
		timeout:    timeout,
		retry:      opts.Retry,
		downloader: downloader,
		log:        log.With().Str("provider", "openai").Logger(),
	}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Output, error) {
	if !g.hasKey {
		return nil, fmt.Errorf("openai: %w: api key is not set", ErrGeneratorUnavailable)
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
func (g *OpenAIGenerator) Release(localPath string) error {
	return g.downloader.Release(localPath)
}

func (g *OpenAIGenerator) call(ctx context.Context, req Request) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	size := req.Size
	if size == "" {
		size = SizeSmall
	}
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          g.model,
		N:              normalizeCount(req.Count),
		Size:           string(size),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", "", classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", "", fmt.Errorf("openai: %w", ErrEmptyResult)
	}
	return resp.Data[0].URL, resp.Data[0].RevisedPrompt, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("%w: openai request: %w", ErrProviderError, err)
}

var _ Generator = (*OpenAIGenerator)(nil)
