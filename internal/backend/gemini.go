package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"planstream/internal/logging"
	"planstream/internal/types"
)

// GeminiClient streams generations from the Gemini API via the official
// genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini streaming client.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Stream generates content for the prompt, invoking onToken once per chunk
// of streamed text. A non-nil error from onToken aborts the stream and is
// returned wrapped.
func (g *GeminiClient) Stream(ctx context.Context, prompt string, onToken func(string) error, opts types.GenerationOptions) (string, error) {
	startTime := time.Now()
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}
	logging.BackendDebug("[Gemini] Stream: model=%s prompt_len=%d", model, len(prompt))

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if t, ok := opts.Extra["temperature"].(float64); ok {
		config.Temperature = genai.Ptr(float32(t))
	}

	var full strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), config) {
		if err != nil {
			logging.BackendError("[Gemini] Stream: failed after %v: %v", time.Since(startTime), err)
			if cerr := ctx.Err(); cerr != nil {
				return full.String(), cerr
			}
			return full.String(), fmt.Errorf("generation failed: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		if terr := onToken(chunk); terr != nil {
			return full.String(), fmt.Errorf("stream aborted: %w", terr)
		}
		full.WriteString(chunk)
	}

	logging.Backend("[Gemini] Stream: completed in %v response_len=%d", time.Since(startTime), full.Len())
	return full.String(), nil
}

// SetModel changes the default model used for generations.
func (g *GeminiClient) SetModel(model string) {
	g.model = model
}

// GetModel returns the current default model.
func (g *GeminiClient) GetModel() string {
	return g.model
}
