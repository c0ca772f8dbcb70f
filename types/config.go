// Package types holds configuration types for publish.yaml.
package types

import (
	"fmt"

	"github.com/initializ/distpub/permissions"
	"gopkg.in/yaml.v3"
)

// Defaults for the test registry workflow.
const (
	DefaultName          = "publish-testpypi"
	DefaultProject       = "python-kraken-sdk"
	DefaultBundleName    = "python-package-distributions"
	DefaultBundlePath    = "dist/"
	DefaultRepositoryURL = "https://test.pypi.org/legacy/"
	DefaultEnvName       = "testpypi"
	DefaultEnvURL        = "https://test.pypi.org/p/python-kraken-sdk"
	DefaultSecretEnv     = "API_TOKEN"
	DefaultStoreType     = "github"
)

// DefaultAllowedEndpoints is the fixed egress allowlist: identity
// federation (including the runner's OIDC token endpoint), the registry
// upload endpoint, container image mirrors, and the artifact store API.
var DefaultAllowedEndpoints = []string{
	"fulcio.sigstore.dev:443",
	"rekor.sigstore.dev:443",
	"tuf-repo-cdn.sigstore.dev:443",
	"test.pypi.org:443",
	"ghcr.io:443",
	"pkg-containers.githubusercontent.com:443",
	"api.github.com:443",
	"results-receiver.actions.githubusercontent.com:443",
	"*.actions.githubusercontent.com:443",
	"*.blob.core.windows.net:443",
}

// WorkflowConfig represents the top-level publish.yaml configuration.
type WorkflowConfig struct {
	Name        string               `yaml:"name"`
	Project     string               `yaml:"project,omitempty"`
	Permissions permissions.GrantSet `yaml:"permissions"`
	Harden      HardenRef            `yaml:"harden"`
	Artifact    ArtifactRef          `yaml:"artifact"`
	Publish     PublishRef           `yaml:"publish"`
	Environment EnvironmentRef       `yaml:"environment"`
}

// HardenRef configures the runtime hardener.
type HardenRef struct {
	EgressPolicy     string   `yaml:"egress_policy,omitempty"` // block, audit, deny-all
	DisableSudo      bool     `yaml:"disable_sudo"`
	AllowedEndpoints []string `yaml:"allowed_endpoints,omitempty"`
	Capabilities     []string `yaml:"capabilities,omitempty"` // endpoint bundles (e.g., "oidc", "ghcr")
}

// ArtifactRef names the bundle to fetch and where to put it.
type ArtifactRef struct {
	Name  string   `yaml:"name"`
	Path  string   `yaml:"path"`
	Store StoreRef `yaml:"store"`
}

// StoreRef selects the artifact store backend.
type StoreRef struct {
	Type       string `yaml:"type"`                 // github, fs, s3, gcs
	Root       string `yaml:"root,omitempty"`       // fs
	Bucket     string `yaml:"bucket,omitempty"`     // s3, gcs
	Region     string `yaml:"region,omitempty"`     // s3
	Endpoint   string `yaml:"endpoint,omitempty"`   // s3-compatible endpoint
	Prefix     string `yaml:"prefix,omitempty"`     // s3, gcs
	Repository string `yaml:"repository,omitempty"` // github owner/repo
	APIURL     string `yaml:"api_url,omitempty"`    // github
}

// PublishRef configures the upload.
type PublishRef struct {
	RepositoryURL     string               `yaml:"repository_url"`
	Permissions       permissions.GrantSet `yaml:"permissions"`
	SkipExisting      bool                 `yaml:"skip_existing,omitempty"`
	SecretEnv         string               `yaml:"secret_env,omitempty"`
	TrustedPublishing bool                 `yaml:"trusted_publishing"`
}

// EnvironmentRef describes the target environment. Display and audit only.
type EnvironmentRef struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url,omitempty"`
}

// DefaultWorkflowConfig returns the built-in configuration used when no
// publish.yaml exists.
func DefaultWorkflowConfig() *WorkflowConfig {
	publishGrants, _ := permissions.Parse("id-token=write")
	return &WorkflowConfig{
		Name:        DefaultName,
		Project:     DefaultProject,
		Permissions: permissions.ReadAll(),
		Harden: HardenRef{
			EgressPolicy:     "block",
			DisableSudo:      true,
			AllowedEndpoints: append([]string(nil), DefaultAllowedEndpoints...),
		},
		Artifact: ArtifactRef{
			Name:  DefaultBundleName,
			Path:  DefaultBundlePath,
			Store: StoreRef{Type: DefaultStoreType},
		},
		Publish: PublishRef{
			RepositoryURL:     DefaultRepositoryURL,
			Permissions:       publishGrants,
			SecretEnv:         DefaultSecretEnv,
			TrustedPublishing: true,
		},
		Environment: EnvironmentRef{
			Name: DefaultEnvName,
			URL:  DefaultEnvURL,
		},
	}
}

// ParseWorkflowConfig parses raw YAML over the defaults and checks required
// fields.
func ParseWorkflowConfig(data []byte) (*WorkflowConfig, error) {
	cfg := DefaultWorkflowConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing workflow config: %w", err)
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("workflow config: name is required")
	}
	if cfg.Artifact.Name == "" {
		return nil, fmt.Errorf("workflow config: artifact.name is required")
	}
	if cfg.Artifact.Path == "" {
		return nil, fmt.Errorf("workflow config: artifact.path is required")
	}
	if cfg.Publish.RepositoryURL == "" {
		return nil, fmt.Errorf("workflow config: publish.repository_url is required")
	}
	if cfg.Publish.SecretEnv == "" {
		cfg.Publish.SecretEnv = DefaultSecretEnv
	}

	return cfg, nil
}

// PublishPermissions returns the grants in effect for the publish stage.
func (c *WorkflowConfig) PublishPermissions() permissions.GrantSet {
	return permissions.Effective(c.Permissions, c.Publish.Permissions)
}
