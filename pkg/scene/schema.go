package scene

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ExportSchema is the JSON schema of the export document.
//
//go:embed schema/export.schema.json
var ExportSchema []byte

// SchemaViolation is one schema validation failure.
type SchemaViolation struct {
	Field       string `json:"field"`
	Description string `json:"description"`
	Value       string `json:"value,omitempty"`
}

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(ExportSchema))
})

// ValidateSchema checks an export document against [ExportSchema]. A nil
// slice means the document is valid. The error is non-nil only when the
// document is not JSON or the schema cannot be compiled.
func ValidateSchema(data []byte) ([]SchemaViolation, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile export schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate export: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]SchemaViolation, 0, len(result.Errors()))

	for _, resultErr := range result.Errors() {
		violation := SchemaViolation{
			Field:       resultErr.Field(),
			Description: resultErr.Description(),
		}

		if resultErr.Value() != nil {
			violation.Value = fmt.Sprint(resultErr.Value())
		}

		violations = append(violations, violation)
	}

	return violations, nil
}
