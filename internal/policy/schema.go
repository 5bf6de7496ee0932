package policy

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// schemaV1 is the JSON Schema for lumina.policy.yaml.
const schemaV1 = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "lumina.policy.yaml",
  "description": "Agent access policy keyed by organization plan",
  "type": "object",
  "required": ["version", "plans"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "default_plan": {"type": "string", "minLength": 1},
    "plans": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["allowed_agents"],
        "additionalProperties": false,
        "properties": {
          "allowed_agents": {
            "type": "array",
            "items": {
              "type": "string",
              "enum": ["*", "customer_support", "marketing", "financial", "supply_chain",
                       "onboarding", "competitive", "data_integration", "sales_lead"]
            }
          },
          "denied_actions": {"type": "array", "items": {"type": "string", "minLength": 1}}
        }
      }
    }
  }
}`

// ValidateSchema checks a policy document against the schema. With strict,
// default_plan must also name a declared plan.
func ValidateSchema(yamlBytes []byte, strict bool) error {
	var raw interface{}
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return fmt.Errorf("parsing YAML for schema validation: %w", err)
	}

	jsonBytes, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaV1),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errMsg string
		for _, verr := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("schema validation errors:\n%s", errMsg)
	}

	if strict {
		return strictValidation(jsonBytes)
	}
	return nil
}

func strictValidation(jsonBytes []byte) error {
	var doc struct {
		DefaultPlan string                     `json:"default_plan"`
		Plans       map[string]json.RawMessage `json:"plans"`
	}
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return fmt.Errorf("parsing policy for strict validation: %w", err)
	}
	plan := doc.DefaultPlan
	if plan == "" {
		plan = "free"
	}
	if _, ok := doc.Plans[plan]; !ok {
		return fmt.Errorf("strict mode: default plan %q is not declared", plan)
	}
	return nil
}

// normalizeYAML converts YAML-decoded maps to string-keyed maps for JSON.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = normalizeYAML(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(v)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
