package types

import (
	"testing"

	"github.com/initializ/distpub/permissions"
)

func TestParseWorkflowConfig_EmptyUsesDefaults(t *testing.T) {
	cfg, err := ParseWorkflowConfig([]byte(""))
	if err != nil {
		t.Fatalf("ParseWorkflowConfig: %v", err)
	}
	if cfg.Artifact.Name != "python-package-distributions" {
		t.Errorf("Artifact.Name = %q", cfg.Artifact.Name)
	}
	if cfg.Artifact.Path != "dist/" {
		t.Errorf("Artifact.Path = %q", cfg.Artifact.Path)
	}
	if cfg.Publish.RepositoryURL != "https://test.pypi.org/legacy/" {
		t.Errorf("RepositoryURL = %q", cfg.Publish.RepositoryURL)
	}
	if cfg.Environment.Name != "testpypi" || cfg.Environment.URL != DefaultEnvURL {
		t.Errorf("Environment = %+v", cfg.Environment)
	}
	if !cfg.Harden.DisableSudo {
		t.Error("DisableSudo should default to true")
	}
	if cfg.Publish.SecretEnv != "API_TOKEN" {
		t.Errorf("SecretEnv = %q", cfg.Publish.SecretEnv)
	}
}

func TestParseWorkflowConfig_DefaultPermissions(t *testing.T) {
	cfg, err := ParseWorkflowConfig(nil)
	if err != nil {
		t.Fatalf("ParseWorkflowConfig: %v", err)
	}
	if cfg.Permissions.Allows(permissions.Contents, permissions.LevelWrite) {
		t.Error("workflow default must be read-only")
	}
	pub := cfg.PublishPermissions()
	if !pub.Allows(permissions.IDToken, permissions.LevelWrite) {
		t.Error("publish stage should hold id-token: write")
	}
	if pub.Allows(permissions.Contents, permissions.LevelWrite) {
		t.Error("publish stage must not gain contents: write")
	}
}

func TestParseWorkflowConfig_Overrides(t *testing.T) {
	cfg, err := ParseWorkflowConfig([]byte(`
name: publish-internal
permissions: read-all
harden:
  egress_policy: audit
  disable_sudo: false
  allowed_endpoints:
    - pypi.internal:443
artifact:
  name: wheels
  path: out/
  store:
    type: fs
    root: /var/lib/artifacts
publish:
  repository_url: https://pypi.internal/legacy/
  skip_existing: true
  permissions: {}
environment:
  name: internal
`))
	if err != nil {
		t.Fatalf("ParseWorkflowConfig: %v", err)
	}
	if cfg.Harden.DisableSudo {
		t.Error("DisableSudo override ignored")
	}
	if len(cfg.Harden.AllowedEndpoints) != 1 {
		t.Errorf("AllowedEndpoints = %v, want override to replace defaults", cfg.Harden.AllowedEndpoints)
	}
	if cfg.Artifact.Store.Type != "fs" || cfg.Artifact.Store.Root != "/var/lib/artifacts" {
		t.Errorf("Store = %+v", cfg.Artifact.Store)
	}
	if !cfg.Publish.SkipExisting {
		t.Error("SkipExisting override ignored")
	}
	if cfg.PublishPermissions().Allows(permissions.IDToken, permissions.LevelWrite) {
		t.Error("empty publish permissions should drop id-token: write")
	}
	// Unset keys keep their defaults.
	if cfg.Project != DefaultProject {
		t.Errorf("Project = %q, want default", cfg.Project)
	}
}

func TestParseWorkflowConfig_RequiredFields(t *testing.T) {
	cases := map[string]string{
		"name":           "name: \"\"\n",
		"artifact.name":  "artifact:\n  name: \"\"\n  path: dist/\n",
		"artifact.path":  "artifact:\n  name: x\n  path: \"\"\n",
		"repository_url": "publish:\n  repository_url: \"\"\n",
	}
	for field, doc := range cases {
		t.Run(field, func(t *testing.T) {
			if _, err := ParseWorkflowConfig([]byte(doc)); err == nil {
				t.Errorf("expected error when %s is empty", field)
			}
		})
	}
}

func TestParseWorkflowConfig_BadYAML(t *testing.T) {
	if _, err := ParseWorkflowConfig([]byte("permissions: [read]\n")); err == nil {
		t.Error("expected error for sequence permissions")
	}
}
