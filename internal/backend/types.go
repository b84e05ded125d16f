// Package backend provides streaming model clients for phase generation.
// Two providers are supported: OpenRouter (OpenAI-compatible SSE chat
// completions) and Google Gemini via the official genai SDK. Both satisfy
// the generation.Backend contract: one onToken call per delta, onToken
// errors abort the stream and propagate wrapped.
package backend

import "time"

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds provider-agnostic client configuration.
type Config struct {
	Provider string // "openrouter" or "gemini"
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	SiteURL  string // Optional: sent as HTTP-Referer for OpenRouter rankings
	SiteName string // Optional: sent as X-Title for OpenRouter rankings
}

// DefaultConfig returns sensible defaults for the given provider.
func DefaultConfig(provider, apiKey string) Config {
	cfg := Config{
		Provider: provider,
		APIKey:   apiKey,
		Timeout:  10 * time.Minute, // long generations need extended timeout
		SiteName: "planstream",
	}
	switch provider {
	case "gemini":
		cfg.Model = "gemini-2.0-flash"
	default:
		cfg.BaseURL = "https://openrouter.ai/api/v1"
		cfg.Model = "anthropic/claude-3.5-sonnet"
	}
	return cfg
}

// =============================================================================
// OPENAI-COMPATIBLE WIRE TYPES
// =============================================================================

// chatMessage is one message in an OpenAI-compatible chat request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatStreamOptions configures streaming behavior.
type chatStreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// chatRequest is an OpenAI-compatible chat completions request.
type chatRequest struct {
	Model         string             `json:"model"`
	Messages      []chatMessage      `json:"messages"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	Temperature   float64            `json:"temperature,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StreamOptions *chatStreamOptions `json:"stream_options,omitempty"`
}

// chatResponse is an OpenAI-compatible response. Delta is populated on
// streaming chunks, Message on non-streaming responses.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}
