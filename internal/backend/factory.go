package backend

import (
	"context"
	"fmt"

	"planstream/internal/generation"
	"planstream/internal/logging"
)

// New builds the streaming backend selected by cfg.Provider. An empty
// provider defaults to OpenRouter.
func New(ctx context.Context, cfg Config) (generation.Backend, error) {
	switch cfg.Provider {
	case "", "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenRouter API key is required")
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultConfig("openrouter", cfg.APIKey).BaseURL
		}
		logging.Boot("backend: openrouter model=%s", cfg.Model)
		return NewOpenRouterClient(cfg), nil

	case "gemini":
		client, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logging.Boot("backend: gemini model=%s", client.GetModel())
		return client, nil

	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}
