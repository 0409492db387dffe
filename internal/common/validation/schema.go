package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

// NewSchema compiles a JSON schema document.
func NewSchema(schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustSchema is NewSchema for package-level schemas.
func MustSchema(schemaJSON string) *Schema {
	s, err := NewSchema(schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a decoded document against the schema.
func (s *Schema) Validate(document interface{}) *ValidationResult {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return &ValidationResult{
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_DOCUMENT"}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

// Identifier fields arrive as strings from newer senders and numbers from
// older ones. null is accepted everywhere extraction treats it as absent.
const (
	text   = `{"type": ["string", "null"]}`
	scalar = `{"type": ["string", "number", "null"]}`
	object = `{"type": ["object", "null"]}`
)

// WebhookSchema describes the shape of an FMS alert webhook. Every field is
// optional; the pipeline decides what is missing.
var WebhookSchema = MustSchema(`{
	"type": "object",
	"properties": {
		"alert_type":   ` + text + `,
		"type":         ` + text + `,
		"alertType":    ` + text + `,
		"message":      ` + text + `,
		"description":  ` + text + `,
		"vehicle_id":   ` + scalar + `,
		"vehicleId":    ` + scalar + `,
		"customer_id":  ` + scalar + `,
		"customerId":   ` + scalar + `,
		"event_id":     ` + scalar + `,
		"eventId":      ` + scalar + `,
		"phone_number": ` + scalar + `,
		"phone":        ` + scalar + `,
		"occurred_at":  ` + text + `,
		"occurredAt":   ` + text + `,
		"timestamp":    ` + scalar + `,
		"speed":        ` + scalar + `,
		"address":      ` + text + `,
		"location": {
			"type": ["object", "null"],
			"properties": {
				"lat": ` + scalar + `,
				"lng": ` + scalar + `
			}
		},
		"body": ` + object + `,
		"user": ` + object + `
	}
}`)

// DiagnosticSchema describes a manual test-send request.
var DiagnosticSchema = MustSchema(`{
	"type": "object",
	"required": ["phone"],
	"properties": {
		"phone":      {"type": "string", "minLength": 1},
		"vehicle_id": {"type": "string"},
		"direct":     {"type": "boolean"}
	}
}`)

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}
