package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Enhanced is the pair of prompts returned by an Enhancer.
type Enhanced struct {
	PostPrompt  string `json:"postPrompt"`
	ImagePrompt string `json:"imagePrompt"`
}

// Enhancer rewrites a default image prompt using business context and
// derives a companion caption prompt.
type Enhancer interface {
	Enhance(ctx context.Context, defaultPrompt, keyword string, business map[string]any) (*Enhanced, error)
}

// ErrNoCompletion is returned when the chat model answers with no content.
var ErrNoCompletion = errors.New("enhancer: empty completion")

const enhancerSystemPrompt = `You are a content strategist for small businesses creating content for Google Business Profile.

Generate:
1. postPrompt: an instruction that can later be used to write a 100-130 word post. Include tone, call-to-action guidance, keyword usage and local SEO cues.
2. imagePrompt: a finalized prompt for a photorealistic, human-centered image (at most 2 people) with no text or logos, grounded in the business data.

Both must use the exact keyword %q, avoid emojis, phone numbers and links, and use a single language.

Return only a JSON object: {"postPrompt": "...", "imagePrompt": "..."}`

// OpenAIEnhancer uses a chat completion in JSON mode.
type OpenAIEnhancer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIEnhancer builds a go-openai chat client.
func NewOpenAIEnhancer(apiKey, baseURL, model string, timeout time.Duration) *OpenAIEnhancer {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIEnhancer{client: openai.NewClientWithConfig(clientConfig), model: model, timeout: timeout}
}

func (e *OpenAIEnhancer) Enhance(ctx context.Context, defaultPrompt, keyword string, business map[string]any) (*Enhanced, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	businessJSON, err := json.MarshalIndent(business, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode business data: %w", err)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.9,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(enhancerSystemPrompt, keyword)},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Default image prompt:\n%s\n\nBusiness data (JSON):\n%s", defaultPrompt, businessJSON)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("enhance prompt: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrNoCompletion
	}

	var out Enhanced
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &out); err != nil {
		return nil, fmt.Errorf("decode enhanced prompt: %w", err)
	}
	return &out, nil
}
