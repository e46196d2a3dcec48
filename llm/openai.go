// ABOUTME: OpenAI Chat Completions client with base URL support for compatible providers.
// ABOUTME: Adapts the openai-go SDK to the engine's Completer contract.

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4.1"

// OpenAIClient implements engine.Completer using the OpenAI Chat Completions
// API. A custom base URL enables OpenAI-compatible providers (Cerebras,
// OpenRouter, Cloudflare AI Gateway, etc.).
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a Chat Completions client. baseURL may be empty for
// the default OpenAI endpoint.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete sends the rendered prompt as a single user message and returns the
// first choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, renderedPrompt string) (*engine.Completion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(renderedPrompt),
		},
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Provider:  "openai",
			Message:   "response contained no choices",
			Retryable: true,
		}
	}
	return &engine.Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: engine.CompletionUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// wrapOpenAIError converts SDK errors into ProviderError so the retry layer
// can classify them.
func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("chat completion failed (status %d)", apiErr.StatusCode),
			Retryable:  retryableStatus(apiErr.StatusCode),
			Cause:      err,
		}
	}
	// Transport-level failures (timeouts, connection resets) are retryable.
	return &ProviderError{
		Provider:  "openai",
		Message:   "chat completion failed",
		Retryable: true,
		Cause:     err,
	}
}

var _ engine.Completer = (*OpenAIClient)(nil)
