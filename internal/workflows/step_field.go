package workflows

import (
	"context"
	"fmt"
	"regexp"

	"datagov-catalog/backend/pkg/models"
)

// FieldCheckStep validates a field of the entity snapshot against a regular
// expression. Used for naming-convention gates on before_* triggers.
type FieldCheckStep struct{}

// NewFieldCheckStep creates a new FieldCheckStep.
func NewFieldCheckStep() *FieldCheckStep {
	return &FieldCheckStep{}
}

type fieldCheckConfig struct {
	Field   string `json:"field"`
	Pattern string `json:"pattern"`
}

func (s *FieldCheckStep) Kind() models.StepKind {
	return models.StepFieldCheck
}

func (s *FieldCheckStep) Schema() models.StepTypeSchema {
	return models.StepTypeSchema{
		Kind:        models.StepFieldCheck,
		Title:       "Field Check",
		Description: "Validates an entity field against a regular expression.",
		ConfigFields: []models.StepConfigField{
			{Name: "field", Type: "string", Required: true, Description: "Snapshot field to validate"},
			{Name: "pattern", Type: "string", Required: true, Description: "Regular expression the field value must match"},
		},
	}
}

func (s *FieldCheckStep) Run(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error) {
	var cfg fieldCheckConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Field == "" || cfg.Pattern == "" {
		return nil, fmt.Errorf("field_check step requires field and pattern")
	}

	pattern, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", cfg.Pattern, err)
	}

	raw, ok := trigger.Snapshot[cfg.Field]
	if !ok || raw == nil {
		return &StepResult{OK: false, Message: fmt.Sprintf("field %q is missing from the entity", cfg.Field)}, nil
	}
	value := fmt.Sprintf("%v", raw)

	if !pattern.MatchString(value) {
		return &StepResult{
			OK:      false,
			Message: fmt.Sprintf("field %q value %q does not match pattern %q", cfg.Field, value, cfg.Pattern),
		}, nil
	}
	return &StepResult{OK: true, Message: fmt.Sprintf("field %q matches %q", cfg.Field, cfg.Pattern)}, nil
}
