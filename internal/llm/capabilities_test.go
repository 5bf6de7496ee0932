package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider answers every call with text (or err) and keeps the last request.
type stubProvider struct {
	text string
	err  error
	last *Request
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Text: s.text, Model: req.Model, Usage: newUsage(3, 4)}, nil
}

func (s *stubProvider) EstimateCost(string, int, int) float64 { return 0 }

func TestGenerateText_DefaultsAndSystemPrompt(t *testing.T) {
	stub := &stubProvider{text: "hello"}
	caps := NewCapabilities(stub, "m1")

	res, err := caps.GenerateText(context.Background(), TextRequest{Prompt: "p", SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, res.Usage)

	require.NotNil(t, stub.last)
	assert.Equal(t, "m1", stub.last.Model)
	assert.Equal(t, defaultMaxTokens, stub.last.MaxTokens)
	assert.Equal(t, defaultTemperature, stub.last.Temperature)
	require.Len(t, stub.last.Messages, 2)
	assert.Equal(t, Message{Role: "system", Content: "sys"}, stub.last.Messages[0])
	assert.Equal(t, Message{Role: "user", Content: "p"}, stub.last.Messages[1])
}

func TestGenerateText_ExplicitBudget(t *testing.T) {
	stub := &stubProvider{text: "ok"}
	caps := NewCapabilities(stub, "m1")

	_, err := caps.GenerateText(context.Background(), TextRequest{Prompt: "p", MaxTokens: 500, Temperature: Float(0.4)})
	require.NoError(t, err)
	assert.Equal(t, 500, stub.last.MaxTokens)
	assert.Equal(t, 0.4, stub.last.Temperature)
	assert.Len(t, stub.last.Messages, 1)
}

func TestGenerateText_ZeroTemperatureIsKept(t *testing.T) {
	stub := &stubProvider{text: "ok"}
	caps := NewCapabilities(stub, "m1")

	_, err := caps.GenerateText(context.Background(), TextRequest{Prompt: "p", Temperature: Float(0)})
	require.NoError(t, err)
	assert.Zero(t, stub.last.Temperature, "explicit zero must not fall back to the default")

	_, err = caps.GenerateText(context.Background(), TextRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, defaultTemperature, stub.last.Temperature)
}

type qualification struct {
	Qualified bool     `json:"qualified"`
	FitScore  int      `json:"fitScore"`
	NextSteps []string `json:"nextSteps"`
}

func TestExtract_Success(t *testing.T) {
	stub := &stubProvider{text: "Sure! Here is the result:\n```json\n{\"qualified\": true, \"fitScore\": 82, \"nextSteps\": [\"book demo\"]}\n```"}
	caps := NewCapabilities(stub, "m1")

	got, err := Extract[qualification](context.Background(), caps, ExtractRequest{
		Text:        "lead notes",
		Schema:      `{"qualified": boolean, "fitScore": number, "nextSteps": string[]}`,
		Description: "Qualify the lead",
	})
	require.NoError(t, err)
	assert.Equal(t, qualification{Qualified: true, FitScore: 82, NextSteps: []string{"book demo"}}, got)

	assert.Equal(t, extractTemperature, stub.last.Temperature)
	assert.Equal(t, extractMaxTokens, stub.last.MaxTokens)
	prompt := stub.last.Messages[0].Content
	assert.Contains(t, prompt, "Qualify the lead")
	assert.Contains(t, prompt, "Schema:\n{\"qualified\"")
	assert.Contains(t, prompt, "Text:\nlead notes")
	assert.Contains(t, prompt, extractInstruction)
}

func TestExtract_PartialFieldsKeepZeroValues(t *testing.T) {
	caps := NewCapabilities(&stubProvider{text: `{"fitScore": 40}`}, "m1")
	got, err := Extract[qualification](context.Background(), caps, ExtractRequest{Text: "x", Schema: "{}"})
	require.NoError(t, err)
	assert.Equal(t, qualification{FitScore: 40}, got)
}

func TestExtract_NoJSONIsParseError(t *testing.T) {
	caps := NewCapabilities(&stubProvider{text: "I cannot answer that."}, "m1")
	_, err := Extract[qualification](context.Background(), caps, ExtractRequest{Text: "x", Schema: "{}"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "I cannot answer that.", perr.Raw)
	assert.Contains(t, err.Error(), "failed to parse structured data")
}

func TestExtract_InvalidJSONIsParseError(t *testing.T) {
	caps := NewCapabilities(&stubProvider{text: `{"fitScore": "high"}`}, "m1")
	_, err := Extract[qualification](context.Background(), caps, ExtractRequest{Text: "x", Schema: "{}"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestExtract_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("quota exhausted")
	caps := NewCapabilities(&stubProvider{err: boom}, "m1")
	_, err := Extract[qualification](context.Background(), caps, ExtractRequest{Text: "x", Schema: "{}"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

var sentiments = []string{"positive", "neutral", "negative", "urgent"}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Classification
	}{
		{"valid", `{"category": "negative", "confidence": 0.86}`, Classification{Category: "negative", Confidence: 0.86}},
		{"case-insensitive", `{"category": "URGENT", "confidence": 0.9}`, Classification{Category: "urgent", Confidence: 0.9}},
		{"confidence clamped high", `{"category": "neutral", "confidence": 3}`, Classification{Category: "neutral", Confidence: 1}},
		{"confidence clamped low", `{"category": "neutral", "confidence": -1}`, Classification{Category: "neutral", Confidence: 0}},
		{"unparsable falls back", "definitely negative", Classification{Category: "positive", Confidence: 0.5}},
		{"out of set falls back", `{"category": "angry", "confidence": 0.99}`, Classification{Category: "positive", Confidence: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProvider{text: tt.reply}
			caps := NewCapabilities(stub, "m1")
			got, err := caps.Classify(context.Background(), ClassifyRequest{
				Text:        "Where is my order?!",
				Categories:  sentiments,
				Description: "Classify customer sentiment and urgency",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, classifyMaxTokens, stub.last.MaxTokens)
			assert.Equal(t, classifyTemperature, stub.last.Temperature)
			assert.Contains(t, stub.last.Messages[0].Content, "Categories: positive, neutral, negative, urgent")
		})
	}
}

func TestClassify_NoCategories(t *testing.T) {
	caps := NewCapabilities(&stubProvider{text: "{}"}, "m1")
	_, err := caps.Classify(context.Background(), ClassifyRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrNoCategories)
}

func TestClassify_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("upstream 503")
	caps := NewCapabilities(&stubProvider{err: boom}, "m1")
	_, err := caps.Classify(context.Background(), ClassifyRequest{Text: "x", Categories: sentiments})
	assert.ErrorIs(t, err, boom)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		req    SummarizeRequest
		prompt string
	}{
		{
			name:   "defaults to 200 words",
			req:    SummarizeRequest{Text: "long ticket thread"},
			prompt: "Summarize the following text in 200 words or less.\n\nText:\nlong ticket thread",
		},
		{
			name:   "focus and word limit",
			req:    SummarizeRequest{Text: "quarterly numbers", MaxWords: 50, Focus: "cash runway"},
			prompt: "Summarize the following text in 50 words or less. Focus on: cash runway\n\nText:\nquarterly numbers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProvider{text: "  short summary \n"}
			caps := NewCapabilities(stub, "m1")

			got, err := caps.Summarize(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, "short summary", got)
			assert.Equal(t, 500, stub.last.MaxTokens)
			assert.Equal(t, defaultTemperature, stub.last.Temperature)
			require.Len(t, stub.last.Messages, 1)
			assert.Equal(t, tt.prompt, stub.last.Messages[0].Content)
		})
	}
}

func TestSummarize_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("upstream 503")
	caps := NewCapabilities(&stubProvider{err: boom}, "m1")
	_, err := caps.Summarize(context.Background(), SummarizeRequest{Text: "x"})
	assert.ErrorIs(t, err, boom)
}
