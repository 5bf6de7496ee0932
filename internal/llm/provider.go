// Package llm provides text-generation providers (OpenAI, OpenRouter, Gemini,
// offline) and the capabilities agents build on: plain generation, structured
// extraction and classification.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds a single provider round trip.
const TimeoutLLMCall = 60 * time.Second

// Domain errors for the LLM package.
var (
	ErrEmptyResponse     = errors.New("provider returned no content")
	ErrMalformedResponse = errors.New("malformed structured response")
	ErrNoCategories      = errors.New("classification requires at least one category")
	ErrUnknownProvider   = errors.New("unknown llm provider")
)

// Provider is the interface all text-generation backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
	// Generate sends one completion request and returns the generated text.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// EstimateCost estimates the cost in EUR for the given model and token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

// Request is a single generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message is one chat turn.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is the provider's answer plus token accounting.
type Response struct {
	Text         string
	FinishReason string
	Model        string
	Usage        Usage
}

// Usage reports tokens consumed by a generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func newUsage(prompt, completion int) Usage {
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}
