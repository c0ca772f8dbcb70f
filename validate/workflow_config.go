package validate

import (
	"fmt"
	"net"
	"net/url"
	"regexp"

	"github.com/initializ/distpub/permissions"
	"github.com/initializ/distpub/security"
	"github.com/initializ/distpub/types"
)

var (
	namePattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	knownStoreTypes = map[string]bool{"github": true, "fs": true, "s3": true, "gcs": true}
)

// ValidationResult holds errors and warnings from config validation.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ValidateWorkflowConfig checks a WorkflowConfig for errors and warnings.
func ValidateWorkflowConfig(cfg *types.WorkflowConfig) *ValidationResult {
	r := &ValidationResult{}

	if cfg.Name == "" {
		r.Errors = append(r.Errors, "name is required")
	} else if !namePattern.MatchString(cfg.Name) {
		r.Errors = append(r.Errors, fmt.Sprintf("name %q must match ^[a-z0-9][a-z0-9-]*$", cfg.Name))
	}

	r.Errors = append(r.Errors, permissions.ValidateWorkflow(cfg.Permissions)...)
	r.Errors = append(r.Errors, permissions.ValidateStage("publish", cfg.Publish.Permissions)...)

	egress, err := security.Resolve(cfg.Harden.EgressPolicy, cfg.Harden.AllowedEndpoints, cfg.Harden.Capabilities)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("harden: %v", err))
	} else if egress.Policy == security.PolicyAudit {
		r.Warnings = append(r.Warnings, "harden.egress_policy 'audit' records violations without blocking them")
	}
	if !cfg.Harden.DisableSudo {
		r.Warnings = append(r.Warnings, "harden.disable_sudo is false; steps may escalate privileges")
	}

	validateArtifact(cfg, r)

	registryHost, err := HostPort(cfg.Publish.RepositoryURL)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("publish.repository_url: %v", err))
	} else {
		u, _ := url.Parse(cfg.Publish.RepositoryURL)
		if u.Scheme == "http" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("publish.repository_url %q is not https; the credential is sent in clear text", cfg.Publish.RepositoryURL))
		}
		if egress != nil && egress.Policy != security.PolicyAudit {
			if guard, gerr := security.NewGuard(egress, nil); gerr == nil && !guard.Allows(registryHost) {
				r.Errors = append(r.Errors, fmt.Sprintf(
					"publish.repository_url host %s is not in the egress allowlist: harden and publish configuration disagree", registryHost))
			}
		}
	}

	if cfg.Publish.TrustedPublishing && !cfg.PublishPermissions().Allows(permissions.IDToken, permissions.LevelWrite) {
		r.Warnings = append(r.Warnings, "publish.trusted_publishing is set but the publish stage lacks id-token: write; the secret credential will be used")
	}

	if cfg.Environment.Name == "" {
		r.Warnings = append(r.Warnings, "environment.name is empty")
	}
	if cfg.Environment.URL != "" {
		if _, err := url.ParseRequestURI(cfg.Environment.URL); err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("environment.url %q is not a valid URL", cfg.Environment.URL))
		}
	}

	return r
}

func validateArtifact(cfg *types.WorkflowConfig, r *ValidationResult) {
	store := cfg.Artifact.Store
	storeType := store.Type
	if storeType == "" {
		storeType = types.DefaultStoreType
	}
	if !knownStoreTypes[storeType] {
		r.Errors = append(r.Errors, fmt.Sprintf("artifact.store.type %q must be one of: github, fs, s3, gcs", storeType))
		return
	}
	switch storeType {
	case "s3", "gcs":
		if store.Bucket == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("artifact.store.bucket is required for %s", storeType))
		}
	case "fs":
		if store.Root == "" {
			r.Errors = append(r.Errors, "artifact.store.root is required for fs")
		}
	case "github":
		if store.APIURL != "" {
			if _, err := HostPort(store.APIURL); err != nil {
				r.Errors = append(r.Errors, fmt.Sprintf("artifact.store.api_url: %v", err))
			}
		}
	}
}

// HostPort returns host:port for an http(s) URL, filling in the scheme's
// default port.
func HostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("%q has no host", raw)
	}
	port := u.Port()
	switch u.Scheme {
	case "https":
		if port == "" {
			port = "443"
		}
	case "http":
		if port == "" {
			port = "80"
		}
	default:
		return "", fmt.Errorf("%q: scheme must be https or http", raw)
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
