// Package testutil provides shared test helpers and mocks for Lumina tests.
package testutil

import (
	"context"
	"sync"

	"github.com/Navneet-55/msmesolut/internal/llm"
)

// ScriptedProvider returns Responses in order (repeating the last one) and
// records every request so tests can assert on prompts, token budgets and
// temperatures. ErrOnCall (1-based) with Err fails that call.
type ScriptedProvider struct {
	mu        sync.Mutex
	Responses []string
	ErrOnCall int
	Err       error
	requests  []llm.Request
}

// Name returns "scripted".
func (p *ScriptedProvider) Name() string { return "scripted" }

// Generate returns the next scripted response.
func (p *ScriptedProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, cp)
	call := len(p.requests)
	p.mu.Unlock()

	if p.Err != nil && (p.ErrOnCall == 0 || p.ErrOnCall == call) {
		return nil, p.Err
	}
	text := "scripted response"
	if n := len(p.Responses); n > 0 {
		idx := call - 1
		if idx >= n {
			idx = n - 1
		}
		text = p.Responses[idx]
	}
	return &llm.Response{
		Text:         text,
		FinishReason: "stop",
		Model:        req.Model,
		Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

// EstimateCost returns a fixed cost for tests.
func (p *ScriptedProvider) EstimateCost(string, int, int) float64 { return 0.001 }

// Calls returns the number of Generate calls so far.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of the recorded requests.
func (p *ScriptedProvider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

// LastPrompt returns the user content of the most recent request.
func (p *ScriptedProvider) LastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return ""
	}
	msgs := p.requests[len(p.requests)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}
