package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic convention keys (OpenTelemetry GenAI SIG).
const (
	GenAISystem             = attribute.Key("gen_ai.system")
	GenAIRequestModel       = attribute.Key("gen_ai.request.model")
	GenAIRequestTemperature = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens   = attribute.Key("gen_ai.request.max_tokens")

	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")

	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
	GenAIResponseModel        = attribute.Key("gen_ai.response.model")
)

// Agent run keys.
const (
	OrganizationID = attribute.Key("lumina.organization_id")
	AgentType      = attribute.Key("lumina.agent.type")
	AgentAction    = attribute.Key("lumina.agent.action")
	RunID          = attribute.Key("lumina.run.id")
	RunStatus      = attribute.Key("lumina.run.status")
)

// LLMRequestAttributes returns the request-side GenAI attributes for a span.
func LLMRequestAttributes(system, model string, temperature float64, maxTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
		GenAIRequestMaxTokens.Int(maxTokens),
	}
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}

// RunAttributes identifies an agent run on a span.
func RunAttributes(organizationID, agentType, action string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		OrganizationID.String(organizationID),
		AgentType.String(agentType),
	}
	if action != "" {
		attrs = append(attrs, AgentAction.String(action))
	}
	return attrs
}
