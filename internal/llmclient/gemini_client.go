// File: internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/config"
)

// GoogleClient implements schemas.LLMClient for the Gemini API through the genai SDK.
type GoogleClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGoogleClient initializes the SDK client. No network traffic happens here.
func NewGoogleClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.GeminiModel == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GoogleClient{
		client:  client,
		model:   cfg.GeminiModel,
		timeout: cfg.APITimeout,
		logger:  logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the prompts to Gemini and returns the text of the first candidate.
func (c *GoogleClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), c.buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini API returned empty content (Reason: %s)", resp.Candidates[0].FinishReason)
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(startTime)), zap.String("model", c.model)}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount))
	}
	c.logger.Debug("LLM generation complete (Gemini)", fields...)
	return text, nil
}

func (c *GoogleClient) buildConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Options.Temperature)),
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat {
		gc.ResponseMIMEType = "application/json"
	}
	if req.Options.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	return gc
}

// Close is a no-op; the genai client holds no long-lived resources.
func (c *GoogleClient) Close() error {
	return nil
}
