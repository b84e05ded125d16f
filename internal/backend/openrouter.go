package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"planstream/internal/logging"
	"planstream/internal/types"
)

// OpenRouterClient streams chat completions from an OpenAI-compatible
// endpoint. OpenRouter provides access to multiple model providers through a
// single API.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	siteURL    string
	siteName   string

	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenRouterClient creates a client from config.
func NewOpenRouterClient(cfg Config) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		model:    cfg.Model,
		siteURL:  cfg.SiteURL,
		siteName: cfg.SiteName,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Stream sends the prompt with streaming enabled and invokes onToken once
// per content delta, in arrival order. A non-nil error from onToken aborts
// the stream and is returned wrapped. Retries apply only before the first
// delta is delivered, so a caller never sees a token twice.
func (c *OpenRouterClient) Stream(ctx context.Context, prompt string, onToken func(string) error, opts types.GenerationOptions) (string, error) {
	// Auto-apply timeout if context has no deadline (centralized timeout handling)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	logging.BackendDebug("[OpenRouter] Stream: model=%s prompt_len=%d", model, len(prompt))

	if c.apiKey == "" {
		logging.BackendError("[OpenRouter] Stream: API key not configured")
		return "", fmt.Errorf("API key not configured")
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		Stream:      true,
		StreamOptions: &chatStreamOptions{
			IncludeUsage: true,
		},
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}
	if t, ok := opts.Extra["temperature"].(float64); ok {
		reqBody.Temperature = t
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// Retry loop for rate limits and transport errors
	maxRetries := 3
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "text/event-stream")
		// OpenRouter-specific headers
		req.Header.Set("HTTP-Referer", c.siteURL)
		req.Header.Set("X-Title", c.siteName)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
			resp.Body.Close()
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		text, err := c.consumeStream(ctx, resp.Body, onToken)
		resp.Body.Close()
		if err != nil {
			logging.BackendError("[OpenRouter] Stream: failed after %v: %v", time.Since(startTime), err)
			return text, err
		}
		logging.Backend("[OpenRouter] Stream: completed in %v response_len=%d", time.Since(startTime), len(text))
		return text, nil
	}

	logging.BackendError("[OpenRouter] Stream: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// consumeStream reads SSE lines from body, forwarding each content delta to
// onToken and accumulating the full text.
func (c *OpenRouterClient) consumeStream(ctx context.Context, body io.Reader, onToken func(string) error) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return full.String(), nil
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return full.String(), fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onToken(delta); err != nil {
			return full.String(), fmt.Errorf("stream aborted: %w", err)
		}
		full.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return full.String(), cerr
		}
		return full.String(), fmt.Errorf("stream read failed: %w", err)
	}
	return full.String(), nil
}

// SetModel changes the default model used for completions.
func (c *OpenRouterClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current default model.
func (c *OpenRouterClient) GetModel() string {
	return c.model
}
