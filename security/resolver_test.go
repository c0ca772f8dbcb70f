package security

import "testing"

func TestResolve_DenyAll(t *testing.T) {
	cfg, err := Resolve("deny-all", []string{"test.pypi.org"}, []string{"oidc"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Policy != PolicyDenyAll {
		t.Errorf("Policy = %q, want %q", cfg.Policy, PolicyDenyAll)
	}
	if len(cfg.AllEndpoints) != 0 {
		t.Errorf("AllEndpoints should be empty, got %v", cfg.AllEndpoints)
	}
}

func TestResolve_Block(t *testing.T) {
	explicit := []string{"test.pypi.org", "api.github.com:443", "TEST.PYPI.ORG:443"}
	cfg, err := Resolve("block", explicit, []string{"oidc"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(cfg.AllowedEndpoints) != 3 {
		t.Errorf("AllowedEndpoints count = %d, want 3", len(cfg.AllowedEndpoints))
	}
	// test.pypi.org appears twice in different spellings.
	if len(cfg.AllEndpoints) != 6 {
		t.Errorf("AllEndpoints = %v, want 6 normalized entries", cfg.AllEndpoints)
	}
	seen := make(map[string]bool)
	for _, e := range cfg.AllEndpoints {
		if seen[e] {
			t.Errorf("duplicate endpoint in AllEndpoints: %s", e)
		}
		seen[e] = true
	}
	if !seen["test.pypi.org:443"] {
		t.Errorf("expected normalized test.pypi.org:443 in %v", cfg.AllEndpoints)
	}
}

func TestResolve_Defaults(t *testing.T) {
	cfg, err := Resolve("", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Policy != PolicyBlock {
		t.Errorf("Policy = %q, want default %q", cfg.Policy, PolicyBlock)
	}
}

func TestResolve_Invalid(t *testing.T) {
	if _, err := Resolve("open", nil, nil); err == nil {
		t.Error("expected error for invalid policy")
	}
	if _, err := Resolve("block", []string{"https://test.pypi.org"}, nil); err == nil {
		t.Error("expected error for URL endpoint")
	}
	if _, err := Resolve("block", nil, []string{"nope"}); err == nil {
		t.Error("expected error for unknown capability")
	}
}
