// internal/common/validation/schema.go
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Request schema names.
const (
	SchemaQuery          = "query"
	SchemaEmergencyCheck = "emergency-check"
	SchemaAssess         = "assess"
	SchemaChatMessage    = "chat-message"
)

var requestSchemas = map[string]string{
	SchemaQuery: `{
	  "type": "object",
	  "required": ["query"],
	  "properties": {
	    "query": {"type": "string", "minLength": 1, "maxLength": 2000},
	    "requestId": {"type": "string", "maxLength": 128},
	    "maxResults": {"type": "integer", "minimum": 0, "maximum": 50},
	    "facilityId": {"type": "string"},
	    "location": {"type": "string"}
	  },
	  "additionalProperties": false
	}`,
	SchemaEmergencyCheck: `{
	  "type": "object",
	  "required": ["query"],
	  "properties": {"query": {"type": "string", "minLength": 1, "maxLength": 2000}},
	  "additionalProperties": false
	}`,
	SchemaAssess: `{
	  "type": "object",
	  "required": ["symptoms"],
	  "properties": {
	    "symptoms": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
	    "disease": {"type": "string"},
	    "language": {"enum": ["en", "hi", "bn", "mixed", "unknown", ""]}
	  },
	  "additionalProperties": false
	}`,
	SchemaChatMessage: `{
	  "type": "object",
	  "required": ["type"],
	  "properties": {
	    "type": {"enum": ["query", "ping"]},
	    "id": {"type": "string"},
	    "query": {"type": "string", "maxLength": 2000},
	    "maxResults": {"type": "integer", "minimum": 0, "maximum": 50}
	  },
	  "if": {"properties": {"type": {"const": "query"}}},
	  "then": {"required": ["query"], "properties": {"query": {"minLength": 1}}}
	}`,
}

var compiled = compileAll()

func compileAll() map[string]*gojsonschema.Schema {
	out := make(map[string]*gojsonschema.Schema, len(requestSchemas))
	for name, source := range requestSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			panic(fmt.Sprintf("validation: schema %s does not compile: %v", name, err))
		}
		out[name] = schema
	}
	return out
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the field errors into one line.
func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// ValidateJSON checks a raw request body against a named schema. A body
// that is not JSON yields a single INVALID_JSON error.
func ValidateJSON(schemaName string, body []byte) (*ValidationResult, error) {
	if !json.Valid(body) {
		return &ValidationResult{Errors: []ValidationError{{
			Field:   "(root)",
			Message: "request body is not valid JSON",
			Code:    "INVALID_JSON",
		}}}, nil
	}
	return validate(schemaName, gojsonschema.NewBytesLoader(body))
}

// ValidateInput checks decoded input against a named schema.
func ValidateInput(schemaName string, input interface{}) (*ValidationResult, error) {
	return validate(schemaName, gojsonschema.NewGoLoader(input))
}

func validate(schemaName string, doc gojsonschema.JSONLoader) (*ValidationResult, error) {
	schema, ok := compiled[schemaName]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", schemaName)
	}
	result, err := schema.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", schemaName, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    errorCode(e.Type()),
		})
	}
	return out, nil
}

func errorCode(kind string) string {
	switch kind {
	case "required":
		return "REQUIRED_FIELD_MISSING"
	case "invalid_type":
		return "INVALID_TYPE"
	case "string_gte", "array_min_items":
		return "MIN_LENGTH_VIOLATION"
	case "string_lte", "array_max_items":
		return "MAX_LENGTH_VIOLATION"
	case "number_gte", "number_lte":
		return "RANGE_VIOLATION"
	case "enum", "const":
		return "INVALID_ENUM_VALUE"
	case "additional_property_not_allowed":
		return "EXTRA_FIELD"
	default:
		return strings.ToUpper(kind)
	}
}
