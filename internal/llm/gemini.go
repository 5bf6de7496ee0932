package llm

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	luminaotel "github.com/Navneet-55/msmesolut/internal/otel"
)

// GeminiProvider implements Provider on the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider. baseURL is optional and only
// used to point the client at a test server.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate calls GenerateContent. System messages become the system
// instruction; the remaining turns are sent as contents.
func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(luminaotel.LLMRequestAttributes(p.Name(), req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("gemini api call: %w", err)
	}

	text := resp.Text()
	if text == "" {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, fmt.Errorf("gemini api call: %w", ErrEmptyResponse)
	}

	out := &Response{Text: text, Model: resp.ModelVersion}
	if out.Model == "" {
		out.Model = req.Model
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if md := resp.UsageMetadata; md != nil {
		out.Usage = newUsage(int(md.PromptTokenCount), int(md.CandidatesTokenCount))
	}

	span.SetAttributes(luminaotel.LLMUsageAttributes(out.Usage.PromptTokens, out.Usage.CompletionTokens)...)
	span.SetAttributes(luminaotel.GenAIResponseFinishReason.String(out.FinishReason))
	return out, nil
}

// EstimateCost estimates the cost in EUR for the given model and token counts.
func (p *GeminiProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	prices := map[string]pricing{
		"gemini-1.5-flash": {input: 0.00007, output: 0.0003},
		"gemini-1.5-pro":   {input: 0.0012, output: 0.0048},
		"gemini-2.0-flash": {input: 0.0001, output: 0.0004},
	}
	pr, ok := prices[model]
	if !ok {
		pr = prices["gemini-1.5-flash"]
	}
	return pr.cost(inputTokens, outputTokens)
}
