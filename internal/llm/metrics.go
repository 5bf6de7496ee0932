package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	luminaotel "github.com/Navneet-55/msmesolut/internal/otel"
)

const meterName = "github.com/Navneet-55/msmesolut/internal/llm"

var (
	costHistogram  metric.Float64Histogram
	tokenCounter   metric.Int64Counter
	metricsOnce    sync.Once
	metricsEnabled bool
)

func initMetrics() {
	meter := luminaotel.Meter(meterName)
	var err error
	costHistogram, err = meter.Float64Histogram(
		"lumina.llm.cost",
		metric.WithDescription("Estimated cost in EUR per generation"),
		metric.WithUnit("eur"),
	)
	if err != nil {
		return
	}
	tokenCounter, err = meter.Int64Counter(
		"lumina.llm.tokens",
		metric.WithDescription("Tokens consumed by generations"),
	)
	if err != nil {
		return
	}
	metricsEnabled = true
}

// RecordUsage records cost and token usage for one generation.
func RecordUsage(ctx context.Context, provider, model string, costEUR float64, usage Usage) {
	metricsOnce.Do(initMetrics)
	if !metricsEnabled {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	costHistogram.Record(ctx, costEUR, attrs)
	tokenCounter.Add(ctx, int64(usage.TotalTokens), attrs)
}
