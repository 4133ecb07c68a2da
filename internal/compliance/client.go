// Package compliance talks to the external compliance-policy service.
package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrPolicyNotFound is returned when the policy service has no such policy.
var ErrPolicyNotFound = errors.New("compliance policy not found")

// Policy is an active compliance policy as served by the policy service.
type Policy struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description,omitempty"`
	Category       string   `json:"category,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	IsActive       bool     `json:"is_active"`
	RequiredFields []string `json:"required_fields,omitempty"`
}

// PolicyClient is an interface for fetching compliance policies.
type PolicyClient interface {
	// GetPolicy returns the policy with the given ID.
	GetPolicy(ctx context.Context, id string) (*Policy, error)
}

// HTTPPolicyClient is an HTTP implementation of the PolicyClient interface.
type HTTPPolicyClient struct {
	url string
}

// NewHTTPPolicyClient creates a new HTTPPolicyClient.
func NewHTTPPolicyClient(url string) *HTTPPolicyClient {
	return &HTTPPolicyClient{url: url}
}

// GetPolicy returns the policy with the given ID.
func (c *HTTPPolicyClient) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/policies/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPolicyNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get policy: status code %d", resp.StatusCode)
	}

	var policy Policy
	if err := json.NewDecoder(resp.Body).Decode(&policy); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return &policy, nil
}
