// File: internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/config"
)

// OpenAIOptions configures a chat-completions client.
type OpenAIOptions struct {
	Provider config.LLMProvider
	APIKey   string
	Model    string
	// BaseURL overrides the API root; Anthropic is reached through its
	// OpenAI-compatible endpoint this way.
	BaseURL   string
	Timeout   time.Duration
	JSONMode  bool
	MaxTokens int
}

// OpenAIClient implements schemas.LLMClient over the chat completions API.
type OpenAIClient struct {
	client   openai.Client
	model    string
	jsonMode bool
	logger   *zap.Logger
}

// NewOpenAIClient builds a client for OpenAI or any compatible endpoint.
func NewOpenAIClient(opts OpenAIOptions, logger *zap.Logger) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", opts.Provider)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%s model name is required", opts.Provider)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(2),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &OpenAIClient{
		client:   openai.NewClient(reqOpts...),
		model:    opts.Model,
		jsonMode: opts.JSONMode,
		logger:   logger.Named("llm_client." + string(opts.Provider)),
	}, nil
}

// Generate sends a system and user message and returns the first choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Opt(req.Options.Temperature),
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Options.MaxTokens))
	}
	if req.Options.ForceJSONFormat && c.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	startTime := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm API returned no choices")
	}

	c.logger.Debug("LLM generation complete",
		zap.Duration("duration", time.Since(startTime)),
		zap.String("model", c.model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int64("total_tokens", resp.Usage.TotalTokens))

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("llm API returned empty content (finish reason: %s)", resp.Choices[0].FinishReason)
	}
	return content, nil
}

// Close is a no-op; the underlying HTTP client is shared.
func (c *OpenAIClient) Close() error {
	return nil
}
