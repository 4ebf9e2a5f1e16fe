package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{Provider: ProviderOpenAI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = NewClient(Config{Provider: ProviderAnthropic, APIKey: "sk-ant"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = NewClient(Config{Provider: "mistral", APIKey: "x"})
	assert.Error(t, err)

	_, err = NewClient(Config{Provider: ProviderOpenAI})
	assert.Error(t, err)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body struct {
			Model       string        `json:"model"`
			MaxTokens   int           `json:"max_tokens"`
			Temperature float64       `json:"temperature"`
			Messages    []ChatMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultOpenAIModel, body.Model)
		assert.Equal(t, 500, body.MaxTokens)
		assert.InDelta(t, 0.7, body.Temperature, 1e-6)
		assert.Equal(t, []ChatMessage{{Role: "user", Content: "prompt"}}, body.Messages)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "You can return items within 30 days."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 9, "total_tokens": 21}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL)
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "prompt"}},
		MaxTokens:   500,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "You can return items within 30 days.", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 9, resp.TokensOut)
}

func TestOpenAIClient_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "prompt"}},
	})
	assert.Error(t, err)
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "Orders ship in 2 days."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("sk-ant", srv.URL+"/")
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "prompt"}},
		MaxTokens:   500,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Orders ship in 2 days.", resp.Content)
	assert.Equal(t, 20, resp.TokensIn)
	assert.Equal(t, 6, resp.TokensOut)
}
