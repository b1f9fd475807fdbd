// File: internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/config"
)

// NewClient creates the LLMClient for the highest-priority provider with a
// configured credential. It returns a nil client and a nil error when no
// credential is set; callers treat that as "LLM not initialized".
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	provider := cfg.Provider()

	switch provider {
	case config.ProviderGemini:
		return NewGoogleClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(OpenAIOptions{
			Provider: provider,
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.OpenAIModel,
			BaseURL:  cfg.OpenAIBaseURL,
			Timeout:  cfg.APITimeout,
			// Native OpenAI honours response_format; compatible endpoints may not.
			JSONMode:  true,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	case config.ProviderAnthropic:
		return NewOpenAIClient(OpenAIOptions{
			Provider:  provider,
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			BaseURL:   cfg.AnthropicBaseURL,
			Timeout:   cfg.APITimeout,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	case config.ProviderNone:
		logger.Warn("No LLM credential configured; task commands will be rejected")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'", provider)
	}
}
