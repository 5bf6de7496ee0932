package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineProvider_Classification(t *testing.T) {
	caps := NewCapabilities(NewOfflineProvider(), "offline")
	got, err := caps.Classify(context.Background(), ClassifyRequest{
		Text:       "The product broke again!",
		Categories: []string{"positive", "neutral", "negative", "urgent"},
	})
	require.NoError(t, err)
	assert.Equal(t, Classification{Category: "positive", Confidence: 0.75}, got)
}

func TestOfflineProvider_ExtractionYieldsZeroValue(t *testing.T) {
	caps := NewCapabilities(NewOfflineProvider(), "offline")
	type shape struct {
		Score int `json:"score"`
	}
	got, err := Extract[shape](context.Background(), caps, ExtractRequest{Text: "lead data", Schema: `{"score": 0}`})
	require.NoError(t, err)
	assert.Equal(t, shape{}, got)
}

func TestOfflineProvider_PlainText(t *testing.T) {
	resp, err := NewOfflineProvider().Generate(context.Background(), &Request{
		Model:    "offline",
		Messages: []Message{{Role: "user", Content: "Write   a\nwelcome email"}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Write a welcome email")
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOfflineProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOfflineProvider().Generate(ctx, &Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
