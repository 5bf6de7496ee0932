package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// ChatCompletionServer is an httptest server speaking the minimal OpenAI chat
// completions protocol. It serves any path ending in /chat/completions, so
// it works for both the go-openai client (/v1/...) and OpenRouter-style base
// URLs (/api/v1/...).
type ChatCompletionServer struct {
	*httptest.Server
	hits atomic.Int32
}

// NewChatCompletionServer returns a started server answering with content.
// Caller must Close it (t.Cleanup(srv.Close)).
func NewChatCompletionServer(content string, inputTokens, outputTokens int) *ChatCompletionServer {
	if content == "" {
		content = "mock response"
	}
	body := map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     inputTokens,
			"completion_tokens": outputTokens,
			"total_tokens":      inputTokens + outputTokens,
		},
	}
	s := &ChatCompletionServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/chat/completions") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	return s
}

// Hits returns the number of completion requests served.
func (s *ChatCompletionServer) Hits() int {
	return int(s.hits.Load())
}
