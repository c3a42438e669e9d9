package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult reports the outcome of validating a job payload.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidatePayload validates a job payload against a JSON schema expressed
// as a Go map. An empty schema accepts any payload.
func ValidatePayload(schemaMap, data map[string]interface{}) (*ValidationResult, error) {
	if len(schemaMap) == 0 {
		return &ValidationResult{Valid: true}, nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	documentLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return out, nil
}

// MustValidate returns an error describing every violation, or nil when
// the payload conforms.
func MustValidate(schemaMap, data map[string]interface{}) error {
	result, err := ValidatePayload(schemaMap, data)
	if err != nil {
		return err
	}
	if !result.Valid {
		errs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			errs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
		}
		return fmt.Errorf("payload validation failed: %v", errs)
	}
	return nil
}
