package security

import (
	"fmt"
	"sort"
)

// DefaultPolicy returns the default egress policy.
func DefaultPolicy() EgressPolicy { return PolicyBlock }

// Resolve builds an EgressConfig from a policy name, explicit endpoints,
// and capability bundle names. Endpoints are normalized to host:port.
func Resolve(policy string, endpoints, capabilities []string) (*EgressConfig, error) {
	p := EgressPolicy(policy)
	if p == "" {
		p = DefaultPolicy()
	}
	if err := validatePolicy(p); err != nil {
		return nil, err
	}

	cfg := &EgressConfig{Policy: p}
	if p == PolicyDenyAll {
		return cfg, nil
	}

	for _, c := range capabilities {
		if _, ok := DefaultCapabilityBundles[c]; !ok {
			return nil, fmt.Errorf("unknown egress capability %q", c)
		}
	}

	cfg.AllowedEndpoints = endpoints
	cfg.CapabilityEndpoints = ResolveCapabilities(capabilities)

	all := append([]string{}, endpoints...)
	all = append(all, cfg.CapabilityEndpoints...)
	normalized := make([]string, 0, len(all))
	for _, raw := range all {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving egress: %w", err)
		}
		normalized = append(normalized, ep.String())
	}
	cfg.AllEndpoints = dedup(normalized)
	return cfg, nil
}

func validatePolicy(p EgressPolicy) error {
	switch p {
	case PolicyBlock, PolicyAudit, PolicyDenyAll:
		return nil
	default:
		return fmt.Errorf("invalid egress policy %q: must be block, audit, or deny-all", p)
	}
}

func dedup(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if item != "" && !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	sort.Strings(result)
	return result
}
