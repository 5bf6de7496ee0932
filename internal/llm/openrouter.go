package llm

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	luminaotel "github.com/Navneet-55/msmesolut/internal/otel"
)

const (
	openRouterSiteName = "Lumina AI"
	openRouterSiteURL  = "https://lumina.ai"
)

// OpenRouterProvider implements Provider against OpenRouter's
// OpenAI-compatible API using the official OpenAI SDK.
type OpenRouterProvider struct {
	client openaisdk.Client
}

// NewOpenRouterProvider creates a provider for baseURL (e.g.
// https://openrouter.ai/api/v1). Extra request options are appended after the
// defaults, so callers can override retries or the HTTP client.
func NewOpenRouterProvider(apiKey, baseURL string, extra ...option.RequestOption) *OpenRouterProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHeader("HTTP-Referer", openRouterSiteURL),
		option.WithHeader("X-Title", openRouterSiteName),
	}
	if trimmed := strings.TrimRight(baseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	opts = append(opts, extra...)
	return &OpenRouterProvider{client: openaisdk.NewClient(opts...)}
}

// Name returns the provider identifier.
func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

// Generate sends a chat completion request through OpenRouter.
func (p *OpenRouterProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(luminaotel.LLMRequestAttributes(p.Name(), req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openaisdk.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openaisdk.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(msg.Content))
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openaisdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("openrouter api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, fmt.Errorf("openrouter api call: %w", ErrEmptyResponse)
	}

	usage := newUsage(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	span.SetAttributes(luminaotel.LLMUsageAttributes(usage.PromptTokens, usage.CompletionTokens)...)
	span.SetAttributes(
		luminaotel.GenAIResponseFinishReason.String(resp.Choices[0].FinishReason),
		luminaotel.GenAIResponseModel.String(resp.Model),
	)

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		Model:        resp.Model,
		Usage:        usage,
	}, nil
}

// EstimateCost uses OpenAI list prices for openai/* routes and a flat
// mid-tier rate for everything else.
func (p *OpenRouterProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	if name, ok := strings.CutPrefix(model, "openai/"); ok {
		return (&OpenAIProvider{}).EstimateCost(name, inputTokens, outputTokens)
	}
	return pricing{input: 0.001, output: 0.003}.cost(inputTokens, outputTokens)
}
