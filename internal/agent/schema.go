package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Input schemas per action. An action without an entry accepts any fields.
var inputSchemas = map[Action]string{
	ActionAnalyzeSentiment: requireIDs("ticketId"),
	ActionGenerateResponse: requireIDs("ticketId"),
	ActionSuggestSolution:  requireIDs("ticketId"),

	ActionGenerateContent: `{
  "type": "object",
  "required": ["contentType", "topic"],
  "properties": {
    "contentType": {"type": "string", "minLength": 1},
    "topic": {"type": "string", "minLength": 1},
    "campaignId": {"type": "string"}
  }
}`,
	ActionCreateCampaign: `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "type": {"type": "string"},
    "budget": {"type": "number", "minimum": 0},
    "targetAudience": {"type": "string"},
    "goals": {"type": ["string", "array"], "items": {"type": "string"}}
  }
}`,
	ActionOptimizeCampaign: requireIDs("campaignId"),

	ActionGenerateForecast: `{
  "type": "object",
  "properties": {
    "period": {"type": "string"},
    "forecastType": {"type": "string"}
  }
}`,

	ActionForecastDemand: `{
  "type": "object",
  "properties": {"productId": {"type": "string"}}
}`,

	ActionCreatePlan: `{
  "type": "object",
  "required": ["employeeName", "role"],
  "properties": {
    "employeeName": {"type": "string", "minLength": 1},
    "role": {"type": "string", "minLength": 1},
    "department": {"type": "string"},
    "startDate": {"type": "string"}
  }
}`,
	ActionGenerateTraining: requireIDs("employeeId"),
	ActionAssessProgress:   requireIDs("employeeId"),

	ActionAnalyzeCompetitor: requireIDs("competitorId"),
	ActionMarketResearch: `{
  "type": "object",
  "required": ["topic"],
  "properties": {"topic": {"type": "string", "minLength": 1}}
}`,

	ActionAnalyzeData: `{
  "type": "object",
  "required": ["data"]
}`,
	ActionCreateDashboard: `{
  "type": "object",
  "properties": {
    "dashboardType": {"type": "string"},
    "metrics": {"type": "array", "items": {"type": "string"}}
  }
}`,

	ActionQualifyLead: requireIDs("leadId"),
	ActionEnrichLead:  requireIDs("leadId"),
	ActionScoreLead:   requireIDs("leadId"),
}

// requireIDs builds a schema requiring non-empty string id fields.
func requireIDs(fields ...string) string {
	props := make([]string, len(fields))
	quoted := make([]string, len(fields))
	for i, f := range fields {
		props[i] = fmt.Sprintf("%q: {\"type\": \"string\", \"minLength\": 1}", f)
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return fmt.Sprintf(`{"type": "object", "required": [%s], "properties": {%s}}`,
		strings.Join(quoted, ", "), strings.Join(props, ", "))
}

var (
	compileOnce sync.Once
	compiled    map[Action]*gojsonschema.Schema
	compileErr  error
)

func compiledSchemas() (map[Action]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[Action]*gojsonschema.Schema, len(inputSchemas))
		for action, src := range inputSchemas {
			s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				compileErr = fmt.Errorf("compiling input schema for %s: %w", action, err)
				return
			}
			compiled[action] = s
		}
	})
	return compiled, compileErr
}

// validateInput checks fields against the action's schema. Violations are
// reported as ErrInvalidInput listing every schema message.
func validateInput(action Action, fields map[string]any) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	s, ok := schemas[action]
	if !ok {
		return nil
	}
	if fields == nil {
		fields = map[string]any{}
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(fields))
	if err != nil {
		return fmt.Errorf("validating %s input: %w", action, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, verr.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}
