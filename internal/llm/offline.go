package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// OfflineProvider answers without any network call. It is selected when the
// configured provider has no API key, so every agent action stays runnable
// in development. Structured prompts get an empty JSON object and
// classification prompts get the first listed category.
type OfflineProvider struct{}

// NewOfflineProvider returns the offline provider.
func NewOfflineProvider() *OfflineProvider {
	return &OfflineProvider{}
}

// Name returns the provider identifier.
func (p *OfflineProvider) Name() string {
	return "offline"
}

// Generate returns a deterministic response derived from the prompt.
func (p *OfflineProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := lastUserContent(req.Messages)

	var text string
	switch {
	case strings.Contains(prompt, categoriesMarker):
		text = offlineClassification(prompt)
	case strings.Contains(prompt, extractInstruction):
		text = "{}"
	default:
		text = fmt.Sprintf("Offline draft (no LLM provider configured). Request summary: %s", truncate(prompt, 160))
	}

	return &Response{
		Text:         text,
		FinishReason: "stop",
		Model:        req.Model,
		Usage:        newUsage(len(prompt)/4, len(text)/4),
	}, nil
}

// EstimateCost is always zero.
func (p *OfflineProvider) EstimateCost(string, int, int) float64 { return 0 }

func offlineClassification(prompt string) string {
	line := prompt[strings.Index(prompt, categoriesMarker)+len(categoriesMarker):]
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	first := strings.TrimSpace(strings.Split(line, ",")[0])
	out, _ := json.Marshal(Classification{Category: first, Confidence: 0.75})
	return string(out)
}

func lastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
