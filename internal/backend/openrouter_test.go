package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planstream/internal/types"
)

// sseChunk writes one OpenAI-compatible streaming chunk.
func sseChunk(w http.ResponseWriter, content string) {
	payload := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]string{"content": content}},
		},
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sseDone(w http.ResponseWriter) {
	fmt.Fprint(w, "data: [DONE]\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func testClient(url string) *OpenRouterClient {
	return NewOpenRouterClient(Config{
		APIKey:   "test-key",
		BaseURL:  url,
		Model:    "test/model",
		Timeout:  5 * time.Second,
		SiteName: "planstream-test",
	})
}

func TestOpenRouterStreamDeltas(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, "Hello")
		sseChunk(w, " ")
		sseChunk(w, "World")
		sseDone(w)
	}))
	defer server.Close()

	var tokens []string
	text, err := testClient(server.URL).Stream(context.Background(), "say hello",
		func(tok string) error {
			tokens = append(tokens, tok)
			return nil
		},
		types.GenerationOptions{MaxTokens: 64})

	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)
	assert.Equal(t, []string{"Hello", " ", "World"}, tokens)

	assert.True(t, gotReq.Stream)
	assert.Equal(t, "test/model", gotReq.Model)
	assert.Equal(t, 64, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "say hello", gotReq.Messages[0].Content)
}

func TestOpenRouterModelOverride(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "text/event-stream")
		sseDone(w)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Stream(context.Background(), "p",
		func(string) error { return nil },
		types.GenerationOptions{Model: "other/model", Extra: map[string]interface{}{"temperature": 0.7}})

	require.NoError(t, err)
	assert.Equal(t, "other/model", gotReq.Model)
	assert.Equal(t, 0.7, gotReq.Temperature)
}

func TestOpenRouterOnTokenAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, "a")
		sseChunk(w, "b")
		sseChunk(w, "c")
		sseDone(w)
	}))
	defer server.Close()

	boom := fmt.Errorf("observer gave up")
	calls := 0
	text, err := testClient(server.URL).Stream(context.Background(), "p",
		func(string) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		},
		types.GenerationOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "stream must stop at the aborting token")
	assert.Equal(t, "a", text)
}

func TestOpenRouterRetryOn429(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, "ok")
		sseDone(w)
	}))
	defer server.Close()

	text, err := testClient(server.URL).Stream(context.Background(), "p",
		func(string) error { return nil }, types.GenerationOptions{})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), hits.Load())
}

func TestOpenRouterHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer server.Close()

	_, err := testClient(server.URL).Stream(context.Background(), "p",
		func(string) error { return nil }, types.GenerationOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestOpenRouterErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, "partial")
		fmt.Fprint(w, `data: {"error":{"message":"model melted"}}`+"\n\n")
	}))
	defer server.Close()

	var tokens []string
	text, err := testClient(server.URL).Stream(context.Background(), "p",
		func(tok string) error {
			tokens = append(tokens, tok)
			return nil
		},
		types.GenerationOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model melted")
	// Deltas delivered before the error are kept.
	assert.Equal(t, []string{"partial"}, tokens)
	assert.Equal(t, "partial", text)
}

func TestOpenRouterMissingAPIKey(t *testing.T) {
	client := NewOpenRouterClient(Config{BaseURL: "http://127.0.0.1:0", Timeout: time.Second})
	_, err := client.Stream(context.Background(), "p",
		func(string) error { return nil }, types.GenerationOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestOpenRouterContextCancelMidStream(t *testing.T) {
	streaming := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, "first")
		close(streaming)
		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-streaming
		cancel()
	}()

	_, err := testClient(server.URL).Stream(ctx, "p",
		func(string) error { return nil }, types.GenerationOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultConfig(t *testing.T) {
	or := DefaultConfig("openrouter", "k")
	assert.Equal(t, "https://openrouter.ai/api/v1", or.BaseURL)
	assert.NotEmpty(t, or.Model)
	assert.Equal(t, 10*time.Minute, or.Timeout)

	gm := DefaultConfig("gemini", "k")
	assert.Equal(t, "gemini-2.0-flash", gm.Model)
	assert.Empty(t, gm.BaseURL)
}
