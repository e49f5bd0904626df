package validation

import (
	"fmt"

	"filepipe/internal/convert"
)

// Violation describes one failed check on one record.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Validator checks one record against a source's schema document. The
// engine behind this interface is replaceable; the pipeline only needs the
// violation list.
type Validator interface {
	Validate(schema map[string]interface{}, record convert.Record) []Violation
}

// SchemaValidator is the default engine. It understands two schema keys:
// "required" (list of field names that must be present and non-empty) and
// "types" (map of field name to "string", "number", or "boolean").
type SchemaValidator struct{}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

func (v *SchemaValidator) Validate(schema map[string]interface{}, record convert.Record) []Violation {
	var violations []Violation

	if required, ok := schema["required"].([]interface{}); ok {
		for _, f := range required {
			field, ok := f.(string)
			if !ok {
				continue
			}
			value, present := record[field]
			if !present || value == nil || value == "" {
				violations = append(violations, Violation{
					Field:   field,
					Rule:    "required",
					Message: fmt.Sprintf("field %q is required", field),
				})
			}
		}
	}

	if types, ok := schema["types"].(map[string]interface{}); ok {
		for field, wantRaw := range types {
			want, ok := wantRaw.(string)
			if !ok {
				continue
			}
			value, present := record[field]
			if !present || value == nil {
				continue
			}
			if !typeMatches(value, want) {
				violations = append(violations, Violation{
					Field:   field,
					Rule:    "type",
					Message: fmt.Sprintf("field %q must be of type %s", field, want),
				})
			}
		}
	}

	return violations
}

func typeMatches(value interface{}, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		// Unknown type names are not enforced.
		return true
	}
}
