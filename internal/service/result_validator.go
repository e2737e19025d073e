package service

import (
	"encoding/json"
	"fmt"

	"github.com/lshigami/Pangolin/internal/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultRequiredParts are the exam parts every result must grade.
var DefaultRequiredParts = []string{"fluency", "pronunciation", "vocabulary", "grammar"}

// ResultValidator checks a candidate ExamResult against the expected schema
// before it is allowed anywhere near storage.
type ResultValidator interface {
	Validate(result *model.ExamResult) error
}

type resultValidator struct {
	requiredParts []string
	schema        *jsonschema.Schema
}

// NewResultValidator compiles the sections schema once. Each graded part needs
// a band in [0, 9] on half-band increments and non-empty feedback; parts
// beyond the required set are allowed but held to the same shape.
func NewResultValidator() (ResultValidator, error) {
	return newResultValidator(DefaultRequiredParts)
}

func newResultValidator(requiredParts []string) (ResultValidator, error) {
	partSchema := map[string]any{
		"type":     "object",
		"required": []any{"band", "feedback"},
		"properties": map[string]any{
			"band": map[string]any{
				"type":       "number",
				"minimum":    0,
				"maximum":    9,
				"multipleOf": 0.5,
			},
			"feedback": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
	}

	required := make([]any, len(requiredParts))
	properties := make(map[string]any, len(requiredParts))
	for i, part := range requiredParts {
		required[i] = part
		properties[part] = partSchema
	}

	definition := map[string]any{
		"type":                 "object",
		"required":             required,
		"properties":           properties,
		"additionalProperties": partSchema,
	}

	// The compiler wants a clean parsed-JSON value, so round-trip through
	// encoding/json before registering.
	defBytes, err := json.Marshal(definition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sections schema: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("failed to parse sections schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema://exam_result_sections.json", defParsed); err != nil {
		return nil, fmt.Errorf("failed to register sections schema: %w", err)
	}
	compiled, err := compiler.Compile("schema://exam_result_sections.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile sections schema: %w", err)
	}

	return &resultValidator{requiredParts: requiredParts, schema: compiled}, nil
}

func (v *resultValidator) Validate(result *model.ExamResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	if result.AttemptID == "" {
		return fmt.Errorf("result has no attempt id")
	}
	if result.StudentKey == "" {
		return fmt.Errorf("result has no student key")
	}
	if result.ComputedAt.IsZero() {
		return fmt.Errorf("result has no computed_at timestamp")
	}
	if len(result.Sections) == 0 {
		return fmt.Errorf("result has no sections")
	}

	raw, err := json.Marshal(result.Sections)
	if err != nil {
		return fmt.Errorf("failed to encode sections for validation: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to decode sections for validation: %w", err)
	}
	if err := v.schema.Validate(parsed); err != nil {
		return fmt.Errorf("sections failed schema validation: %w", err)
	}
	return nil
}
