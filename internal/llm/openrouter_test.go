package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRouterGenerate_Success(t *testing.T) {
	var body map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.Equal(t, openRouterSiteName, r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "gen-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "openai/gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "Campaign strategy draft"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 40, "completion_tokens": 10, "total_tokens": 50},
		})
	}))
	t.Cleanup(ts.Close)

	provider := NewOpenRouterProvider("or-key", ts.URL+"/api/v1/", option.WithMaxRetries(0))
	resp, err := provider.Generate(context.Background(), &Request{
		Model: "openai/gpt-4o-mini",
		Messages: []Message{
			{Role: "system", Content: "You are a marketing strategist."},
			{Role: "user", Content: "Plan a launch"},
		},
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Campaign strategy draft", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 50, resp.Usage.TotalTokens)

	assert.Equal(t, "openai/gpt-4o-mini", body["model"])
	assert.EqualValues(t, 1500, body["max_tokens"])
	msgs, _ := body["messages"].([]interface{})
	assert.Len(t, msgs, 2)
}

func TestOpenRouterGenerate_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(ts.Close)

	provider := NewOpenRouterProvider("or-key", ts.URL, option.WithMaxRetries(0))
	_, err := provider.Generate(context.Background(), &Request{
		Model:    "nope/model",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter api call")
}

func TestOpenRouterEstimateCost(t *testing.T) {
	p := &OpenRouterProvider{}
	openaiRoute := p.EstimateCost("openai/gpt-4o", 1000, 1000)
	assert.InDelta(t, (&OpenAIProvider{}).EstimateCost("gpt-4o", 1000, 1000), openaiRoute, 1e-9)
	assert.Greater(t, p.EstimateCost("anthropic/claude-3.5-sonnet", 1000, 1000), 0.0)
}
