package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/pkg/models"
)

// NotificationStep delivers a notification about the triggering entity.
// When a webhook URL is configured it posts a JSON payload there, otherwise
// the notification is written to the service log.
type NotificationStep struct {
	webhookURL string
	logger     *logging.Logger
}

// NewNotificationStep creates a new NotificationStep. webhookURL may be empty.
func NewNotificationStep(webhookURL string, logger *logging.Logger) *NotificationStep {
	return &NotificationStep{webhookURL: webhookURL, logger: logger}
}

type notificationConfig struct {
	Message string `json:"message"`
	// WebhookURL overrides the service-level webhook for this step.
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (s *NotificationStep) Kind() models.StepKind {
	return models.StepNotification
}

func (s *NotificationStep) Schema() models.StepTypeSchema {
	return models.StepTypeSchema{
		Kind:        models.StepNotification,
		Title:       "Notification",
		Description: "Sends a notification about the triggering entity.",
		ConfigFields: []models.StepConfigField{
			{Name: "message", Type: "string", Required: true, Description: "Notification text"},
			{Name: "webhook_url", Type: "string", Required: false, Description: "Webhook override for this step"},
		},
	}
}

func (s *NotificationStep) Run(ctx context.Context, config map[string]any, trigger *models.TriggerContext) (*StepResult, error) {
	var cfg notificationConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Message == "" {
		return nil, fmt.Errorf("notification step requires message")
	}

	url := s.webhookURL
	if cfg.WebhookURL != "" {
		url = cfg.WebhookURL
	}
	if url == "" {
		s.logger.Info("notification: %s (entity %s/%s)", cfg.Message, trigger.EntityKind, trigger.EntityID)
		return &StepResult{OK: true, Message: "notification logged"}, nil
	}

	payload, err := json.Marshal(map[string]any{
		"message":     cfg.Message,
		"entity_kind": trigger.EntityKind,
		"entity_id":   trigger.EntityID,
		"entity_name": trigger.EntityName,
		"actor":       trigger.Actor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &StepResult{OK: false, Message: fmt.Sprintf("notification webhook returned status %d", resp.StatusCode)}, nil
	}
	return &StepResult{OK: true, Message: "notification delivered"}, nil
}
