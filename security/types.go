// Package security resolves the run's egress allowlist and enforces it on
// every outbound connection the process makes.
package security

import "errors"

// ErrEgressBlocked is wrapped by every egress denial.
var ErrEgressBlocked = errors.New("egress blocked by network policy")

// ErrPrivilegeEscalation is returned when privilege escalation could not be
// disabled for the rest of the run.
var ErrPrivilegeEscalation = errors.New("privilege escalation not disabled")

// EgressPolicy controls what happens to traffic outside the allowlist.
type EgressPolicy string

const (
	// PolicyBlock denies every destination not on the allowlist.
	PolicyBlock EgressPolicy = "block"
	// PolicyAudit records violations but lets traffic through.
	PolicyAudit EgressPolicy = "audit"
	// PolicyDenyAll denies every destination.
	PolicyDenyAll EgressPolicy = "deny-all"
)

// EgressConfig holds the resolved egress configuration.
type EgressConfig struct {
	Policy              EgressPolicy `json:"policy"`
	AllowedEndpoints    []string     `json:"allowed_endpoints,omitempty"`    // explicit entries
	CapabilityEndpoints []string     `json:"capability_endpoints,omitempty"` // from capability bundles
	AllEndpoints        []string     `json:"all_endpoints,omitempty"`        // normalized, deduplicated union
}
