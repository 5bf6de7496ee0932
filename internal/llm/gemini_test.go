package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiGenerate_Success(t *testing.T) {
	var path, reqBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		reqBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": "Forecast looks stable."}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{
				"promptTokenCount":     7,
				"candidatesTokenCount": 3,
				"totalTokenCount":      10,
			},
			"modelVersion": "gemini-1.5-flash-002",
		})
	}))
	t.Cleanup(ts.Close)

	provider, err := NewGeminiProvider(context.Background(), "g-key", ts.URL)
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), &Request{
		Model: "gemini-1.5-flash",
		Messages: []Message{
			{Role: "system", Content: "You are a financial analyst."},
			{Role: "user", Content: "Forecast next quarter"},
		},
		Temperature: 0.5,
		MaxTokens:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Forecast looks stable.", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "gemini-1.5-flash-002", resp.Model)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)

	assert.True(t, strings.HasSuffix(path, "models/gemini-1.5-flash:generateContent"), path)
	assert.Contains(t, reqBody, "You are a financial analyst.")
	assert.Contains(t, reqBody, "Forecast next quarter")
}

func TestGeminiGenerate_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	t.Cleanup(ts.Close)

	provider, err := NewGeminiProvider(context.Background(), "bad", ts.URL)
	require.NoError(t, err)
	_, err = provider.Generate(context.Background(), &Request{
		Model:    "gemini-1.5-flash",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini api call")
}

func TestGeminiEstimateCost(t *testing.T) {
	p := &GeminiProvider{}
	assert.Greater(t, p.EstimateCost("gemini-1.5-pro", 1000, 1000), p.EstimateCost("gemini-1.5-flash", 1000, 1000))
	assert.Equal(t, p.EstimateCost("gemini-1.5-flash", 10, 10), p.EstimateCost("unknown", 10, 10))
}
