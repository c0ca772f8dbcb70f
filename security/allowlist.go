package security

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// AllowlistFile is the audit file name written by the hardener.
const AllowlistFile = "egress_allowlist.json"

type allowlistOutput struct {
	Policy              string   `json:"policy"`
	DisableSudo         bool     `json:"disable_sudo"`
	AllowedEndpoints    []string `json:"allowed_endpoints"`
	CapabilityEndpoints []string `json:"capability_endpoints"`
	AllEndpoints        []string `json:"all_endpoints"`
}

// GenerateAllowlistJSON produces the JSON form of the resolved policy.
func GenerateAllowlistJSON(cfg *EgressConfig, disableSudo bool) ([]byte, error) {
	out := allowlistOutput{
		Policy:              string(cfg.Policy),
		DisableSudo:         disableSudo,
		AllowedEndpoints:    cfg.AllowedEndpoints,
		CapabilityEndpoints: cfg.CapabilityEndpoints,
		AllEndpoints:        cfg.AllEndpoints,
	}
	// Empty arrays, not null.
	if out.AllowedEndpoints == nil {
		out.AllowedEndpoints = []string{}
	}
	if out.CapabilityEndpoints == nil {
		out.CapabilityEndpoints = []string{}
	}
	if out.AllEndpoints == nil {
		out.AllEndpoints = []string{}
	}
	return json.MarshalIndent(out, "", "  ")
}

// WriteAllowlist writes egress_allowlist.json under dir and returns its path.
func WriteAllowlist(dir string, cfg *EgressConfig, disableSudo bool) (string, error) {
	data, err := GenerateAllowlistJSON(cfg, disableSudo)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, AllowlistFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
