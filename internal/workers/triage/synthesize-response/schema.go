// internal/workers/triage/synthesize-response/schema.go
package synthesizeresponse

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const responseSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["responseId", "responseText", "responseType", "confidence", "disclaimers", "recommendations", "sources", "emergencyAlert", "generatedAt"],
  "properties": {
    "responseId": {"type": "string", "pattern": "^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$"},
    "responseText": {"type": "string", "minLength": 1},
    "responseType": {"enum": ["emergency_alert", "symptom_guidance", "prevention_guidance", "general_medical", "insufficient_information"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "disclaimers": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {"id": {"type": "string"}, "name": {"type": "string"}}
      }
    },
    "emergencyAlert": {"type": "boolean"},
    "metadata": {"type": "object"},
    "generatedAt": {"type": "string"}
  },
  "if": {"properties": {"responseType": {"const": "emergency_alert"}}},
  "then": {"properties": {"emergencyAlert": {"const": true}}},
  "else": {"properties": {"emergencyAlert": {"const": false}}}
}`

var responseSchema = mustSchema(responseSchemaJSON)

func mustSchema(source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("synthesizeresponse: invalid response schema: %v", err))
	}
	return schema
}

// validateResponse checks a response against the response schema.
func validateResponse(response interface{}) error {
	result, err := responseSchema.Validate(gojsonschema.NewGoLoader(response))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("response validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
