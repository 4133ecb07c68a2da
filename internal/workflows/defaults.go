package workflows

import (
	"context"
	"fmt"

	"datagov-catalog/backend/pkg/models"
)

func strptr(s string) *string { return &s }

// defaultWorkflows are the definitions installed by LoadDefaults. They ship
// with the service and are protected from deletion.
func defaultWorkflows() []*models.Workflow {
	return []*models.Workflow{
		{
			Name:        "Dataset Naming Convention",
			Description: strptr("Rejects dataset creation when the name does not follow snake_case."),
			Trigger: models.TriggerSpec{
				Kind:       models.TriggerBeforeCreate,
				EntityKind: models.EntityDataset,
			},
			Steps: []models.Step{
				{
					Name:  "Check dataset name",
					Kind:  models.StepFieldCheck,
					Order: 0,
					Config: map[string]any{
						"field":   "name",
						"pattern": "^[a-z][a-z0-9_]*$",
					},
				},
			},
			IsActive:  true,
			IsDefault: true,
		},
		{
			Name:        "Dataset Activation Notice",
			Description: strptr("Notifies when a dataset moves from draft to active."),
			Trigger: models.TriggerSpec{
				Kind:       models.TriggerOnStatusChange,
				EntityKind: models.EntityDataset,
				StatusFrom: strptr("draft"),
				StatusTo:   strptr("active"),
			},
			Steps: []models.Step{
				{
					Name:  "Notify activation",
					Kind:  models.StepNotification,
					Order: 0,
					Config: map[string]any{
						"message": "Dataset activated",
					},
				},
			},
			IsActive:  true,
			IsDefault: true,
		},
		{
			Name:        "Contract Deletion Audit",
			Description: strptr("Records a notification whenever a data contract is deleted."),
			Trigger: models.TriggerSpec{
				Kind:       models.TriggerOnDelete,
				EntityKind: models.EntityDataContract,
			},
			Steps: []models.Step{
				{
					Name:      "Notify deletion",
					Kind:      models.StepNotification,
					Order:     0,
					OnFailure: models.FailureContinue,
					Config: map[string]any{
						"message": "Data contract deleted",
					},
				},
			},
			IsActive:  true,
			IsDefault: true,
		},
	}
}

// LoadDefaults installs the built-in default workflows, skipping any whose
// name already exists. It returns the number of workflows created.
func (c *Catalog) LoadDefaults(ctx context.Context) (int, error) {
	existing, err := c.store.List(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list workflows: %w", err)
	}
	existingNames := make(map[string]bool, len(existing))
	for _, workflow := range existing {
		existingNames[workflow.Name] = true
	}

	created := 0
	for _, workflow := range defaultWorkflows() {
		if existingNames[workflow.Name] {
			c.logger.Info("Skipping existing default workflow %q", workflow.Name)
			continue
		}
		if _, err := c.Create(ctx, workflow, strptr("system")); err != nil {
			return created, fmt.Errorf("failed to load default workflow %q: %w", workflow.Name, err)
		}
		created++
	}
	return created, nil
}
