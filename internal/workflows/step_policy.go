package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"datagov-catalog/backend/internal/compliance"
	"datagov-catalog/backend/pkg/models"
)

// PolicyCheckStep runs a compliance policy against the entity snapshot.
// The policy itself lives in the external compliance service; the step only
// fetches it by ID and checks the snapshot against its required fields.
type PolicyCheckStep struct {
	policies compliance.PolicyClient
}

// NewPolicyCheckStep creates a new PolicyCheckStep.
func NewPolicyCheckStep(policies compliance.PolicyClient) *PolicyCheckStep {
	return &PolicyCheckStep{policies: policies}
}

type policyCheckConfig struct {
	PolicyID string `json:"policy_id"`
}

// Kind returns the step kind this capability handles.
func (s *PolicyCheckStep) Kind() models.StepKind {
	return models.StepPolicyCheck
}

// Schema describes the capability for the workflow designer.
func (s *PolicyCheckStep) Schema() models.StepTypeSchema {
	return models.StepTypeSchema{
		Kind:        models.StepPolicyCheck,
		Title:       "Compliance Policy Check",
		Description: "Evaluates a compliance policy against the entity snapshot.",
		ConfigFields: []models.StepConfigField{
			{Name: "policy_id", Type: "string", Required: true, Description: "ID of the compliance policy to evaluate"},
		},
	}
}

// Run fetches the configured policy and fails the step when the policy is
// missing, inactive, or any of its required fields is absent from the
// entity snapshot.
func (s *PolicyCheckStep) Run(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error) {
	var cfg policyCheckConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.PolicyID == "" {
		return nil, fmt.Errorf("policy_check step requires policy_id")
	}

	policy, err := s.policies.GetPolicy(ctx, cfg.PolicyID)
	if errors.Is(err, compliance.ErrPolicyNotFound) {
		return &StepResult{OK: false, Message: fmt.Sprintf("compliance policy %s does not exist", cfg.PolicyID)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch policy %s: %w", cfg.PolicyID, err)
	}
	if !policy.IsActive {
		return &StepResult{OK: false, Message: fmt.Sprintf("compliance policy %q is inactive", policy.Name)}, nil
	}

	var missing []string
	for _, field := range policy.RequiredFields {
		value, ok := trigger.Snapshot[field]
		if !ok || value == nil || value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &StepResult{
			OK:      false,
			Message: fmt.Sprintf("policy %q violated: missing required fields: %s", policy.Name, strings.Join(missing, ", ")),
			Output:  map[string]any{"policy_id": policy.ID, "missing_fields": missing},
		}, nil
	}

	return &StepResult{
		OK:      true,
		Message: fmt.Sprintf("policy %q passed", policy.Name),
		Output:  map[string]any{"policy_id": policy.ID},
	}, nil
}
