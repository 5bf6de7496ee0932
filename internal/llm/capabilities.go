package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.7

	extractTemperature  = 0.3
	extractMaxTokens    = 2048
	classifyTemperature = 0.5
	classifyMaxTokens   = 200
	fallbackConfidence  = 0.5
	summarizeMaxTokens  = 500
	summarizeMaxWords   = 200

	extractInstruction = "Return only valid JSON matching the schema."
	categoriesMarker   = "Categories: "
)

// Capabilities is the generation surface agents depend on. It binds a
// provider to a model and records usage for every call.
type Capabilities struct {
	provider Provider
	model    string
}

// NewCapabilities binds provider to model.
func NewCapabilities(provider Provider, model string) *Capabilities {
	return &Capabilities{provider: provider, model: model}
}

// ProviderName returns the underlying provider identifier.
func (c *Capabilities) ProviderName() string { return c.provider.Name() }

// Model returns the model every request uses.
func (c *Capabilities) Model() string { return c.model }

// TextRequest is a plain generation request. Zero MaxTokens selects 2048
// tokens and a nil Temperature selects 0.7; an explicit 0 is sent as is.
type TextRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// Float returns a pointer to v, for TextRequest.Temperature.
func Float(v float64) *float64 { return &v }

// TextResult is generated text plus token usage.
type TextResult struct {
	Text  string
	Model string
	Usage Usage
}

// GenerateText runs one generation.
func (c *Capabilities) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	msgs := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, Message{Role: "user", Content: req.Prompt})

	resp, err := c.provider.Generate(ctx, &Request{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}
	cost := c.provider.EstimateCost(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	RecordUsage(ctx, c.provider.Name(), c.model, cost, resp.Usage)

	return &TextResult{Text: resp.Text, Model: resp.Model, Usage: resp.Usage}, nil
}

// ParseError reports a generation whose text did not contain a parsable JSON
// object. It matches ErrMalformedResponse with errors.Is.
type ParseError struct {
	Raw string // the generated text
	Err error  // decode error, nil when no object was found
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse structured data: %v", e.Err)
	}
	return "failed to parse structured data: no JSON object in response"
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Err}
}

// ExtractRequest describes a structured extraction. Schema is a
// human-readable shape description (usually a JSON skeleton).
type ExtractRequest struct {
	Text        string
	Schema      string
	Description string
}

// Extract asks the model to restate Text as JSON following Schema and decodes
// the first JSON object in the answer into T. Absent fields keep their zero
// value; a missing or undecodable object is a *ParseError.
func Extract[T any](ctx context.Context, c *Capabilities, req ExtractRequest) (T, error) {
	var out T

	ctx, span := tracer.Start(ctx, "gen_ai.extract",
		trace.WithAttributes(attribute.Int("gen_ai.extract.text_length", len(req.Text))))
	defer span.End()

	description := req.Description
	if description == "" {
		description = "Extract structured data from the text below."
	}
	prompt := fmt.Sprintf("%s\n\nSchema:\n%s\n\nText:\n%s\n\n%s", description, req.Schema, req.Text, extractInstruction)

	res, err := c.GenerateText(ctx, TextRequest{
		Prompt:      prompt,
		MaxTokens:   extractMaxTokens,
		Temperature: Float(extractTemperature),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	if err := DecodeObject(res.Text, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	return out, nil
}

// DecodeObject decodes the first JSON object in text into v.
func DecodeObject(text string, v any) error {
	span, ok := FindJSONObject(text)
	if !ok {
		return &ParseError{Raw: text}
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	return nil
}

// SummarizeRequest asks for a summary of Text in at most MaxWords words
// (200 when zero), optionally steered towards Focus.
type SummarizeRequest struct {
	Text     string
	MaxWords int
	Focus    string
}

// Summarize condenses req.Text. Provider errors are returned as-is.
func (c *Capabilities) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.summarize")
	defer span.End()

	words := req.MaxWords
	if words <= 0 {
		words = summarizeMaxWords
	}
	var focus string
	if req.Focus != "" {
		focus = " Focus on: " + req.Focus
	}
	prompt := fmt.Sprintf("Summarize the following text in %d words or less.%s\n\nText:\n%s", words, focus, req.Text)

	res, err := c.GenerateText(ctx, TextRequest{Prompt: prompt, MaxTokens: summarizeMaxTokens})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// ClassifyRequest asks for one label out of Categories.
type ClassifyRequest struct {
	Text        string
	Categories  []string
	Description string
}

// Classification is the chosen category and the model's confidence in [0,1].
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classify labels text with one of req.Categories. An unparsable answer, or
// one naming a category outside the list, falls back to the first category
// with confidence 0.5. Provider errors are returned as-is.
func (c *Capabilities) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	if len(req.Categories) == 0 {
		return Classification{}, ErrNoCategories
	}

	ctx, span := tracer.Start(ctx, "gen_ai.classify",
		trace.WithAttributes(attribute.StringSlice("gen_ai.classify.categories", req.Categories)))
	defer span.End()

	description := req.Description
	if description == "" {
		description = "Classify the text below."
	}
	prompt := fmt.Sprintf("%s\n\n%s%s\n\nText:\n%s\n\nRespond with JSON only: {\"category\": \"<one of the categories>\", \"confidence\": <number between 0 and 1>}",
		description, categoriesMarker, strings.Join(req.Categories, ", "), req.Text)

	res, err := c.GenerateText(ctx, TextRequest{
		Prompt:      prompt,
		MaxTokens:   classifyMaxTokens,
		Temperature: Float(classifyTemperature),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Classification{}, err
	}

	fallback := Classification{Category: req.Categories[0], Confidence: fallbackConfidence}

	var parsed Classification
	if err := DecodeObject(res.Text, &parsed); err != nil {
		span.SetAttributes(attribute.Bool("gen_ai.classify.fallback", true))
		return fallback, nil
	}

	category, ok := matchCategory(parsed.Category, req.Categories)
	if !ok {
		span.SetAttributes(attribute.Bool("gen_ai.classify.fallback", true))
		return fallback, nil
	}
	return Classification{Category: category, Confidence: clamp01(parsed.Confidence)}, nil
}

func matchCategory(got string, categories []string) (string, bool) {
	got = strings.TrimSpace(got)
	for _, c := range categories {
		if strings.EqualFold(got, c) {
			return c, true
		}
	}
	return "", false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
