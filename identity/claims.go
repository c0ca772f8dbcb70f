// Package identity exchanges the runner's OIDC token for a short-lived
// registry upload token (trusted publishing).
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RunnerClaims are the workflow claims carried by a runner-issued OIDC
// token. They are decoded without signature verification: the registry
// verifies the token, distpub only reads it for diagnostics.
type RunnerClaims struct {
	jwt.RegisteredClaims
	Repository      string `json:"repository,omitempty"`
	RepositoryOwner string `json:"repository_owner,omitempty"`
	Ref             string `json:"ref,omitempty"`
	Workflow        string `json:"workflow,omitempty"`
	WorkflowRef     string `json:"workflow_ref,omitempty"`
	JobWorkflowRef  string `json:"job_workflow_ref,omitempty"`
	Environment     string `json:"environment,omitempty"`
	RunID           string `json:"run_id,omitempty"`
}

// DecodeClaims parses a JWT without verifying it.
func DecodeClaims(token string) (*RunnerClaims, error) {
	claims := &RunnerClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding oidc token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the token has an expiry at or before now.
func (c *RunnerClaims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// LogFields returns the claims that help diagnose a rejected exchange.
func (c *RunnerClaims) LogFields() map[string]any {
	fields := map[string]any{
		"sub":        c.Subject,
		"repository": c.Repository,
		"workflow":   c.WorkflowRef,
		"ref":        c.Ref,
	}
	if c.Environment != "" {
		fields["environment"] = c.Environment
	}
	if c.ExpiresAt != nil {
		fields["expires"] = c.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return fields
}
