package llm

import (
	"context"
	"fmt"
	"log/slog"

	llmprovider "github.com/haowjy/meridian-llm-go"
	"github.com/haowjy/meridian-llm-go/providers/anthropic"
	"github.com/haowjy/meridian-llm-go/providers/lorem"

	"memoir/internal/config"
	domainllm "memoir/internal/domain/services/llm"
)

// ProviderFactory creates text generators from configuration
type ProviderFactory struct {
	config *config.Config
	logger *slog.Logger
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(cfg *config.Config, logger *slog.Logger) *ProviderFactory {
	return &ProviderFactory{
		config: cfg,
		logger: logger,
	}
}

// NewTextGenerator returns the configured backend wrapped with retries and throttling
//
// Supported providers:
//   - "anthropic" - Claude models via Anthropic API
//   - "gemini" - Google Gemini models
//   - "lorem" - Mock provider for development (no API key required)
func (f *ProviderFactory) NewTextGenerator(ctx context.Context) (domainllm.TextGenerator, error) {
	var (
		generator domainllm.TextGenerator
		err       error
	)

	switch f.config.TextProvider {
	case "anthropic", "lorem":
		var provider llmprovider.Provider
		provider, err = f.GetProvider(f.config.TextProvider)
		if err == nil {
			generator = NewProviderGenerator(provider, f.config.TextModel)
		}
	case "gemini":
		generator, err = NewGeminiGenerator(ctx, f.config.GeminiAPIKey, f.config.TextModel)
	default:
		err = fmt.Errorf("unsupported text provider: %s", f.config.TextProvider)
	}
	if err != nil {
		return nil, err
	}

	policy := DefaultRetryPolicy()
	policy.MaxTries = f.config.GenerationMaxTries
	policy.RatePerSecond = f.config.GenerationRPS

	f.logger.Info("text generator configured",
		"provider", generator.Name(),
		"model", f.config.TextModel,
		"max_tries", policy.MaxTries,
		"rps", policy.RatePerSecond,
	)

	return WithRetries(generator, policy, f.logger), nil
}

// GetProvider returns a meridian-llm-go provider instance by name
func (f *ProviderFactory) GetProvider(providerName string) (llmprovider.Provider, error) {
	switch providerName {
	case "anthropic":
		return f.createAnthropicProvider()
	case "lorem":
		return f.createLoremProvider()
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}

// createAnthropicProvider creates an Anthropic provider instance
func (f *ProviderFactory) createAnthropicProvider() (llmprovider.Provider, error) {
	if f.config.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	provider, err := anthropic.NewProvider(f.config.AnthropicAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
	}

	return provider, nil
}

// createLoremProvider creates a Lorem mock provider instance
func (f *ProviderFactory) createLoremProvider() (llmprovider.Provider, error) {
	provider := lorem.NewProvider()
	return provider, nil
}
