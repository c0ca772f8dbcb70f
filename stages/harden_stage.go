// Package stages holds the three pipeline stages of a publish run.
package stages

import (
	"context"
	"fmt"

	"github.com/initializ/distpub/permissions"
	"github.com/initializ/distpub/pipeline"
	"github.com/initializ/distpub/security"
)

// HardenStage resolves the egress allowlist, disables privilege escalation,
// and installs the egress guard for the rest of the run.
type HardenStage struct {
	// InstallDefault also routes http.DefaultTransport through the guard.
	InstallDefault bool
	// DropPrivileges overrides the platform implementation. Tests use it.
	DropPrivileges func() error
}

func (s *HardenStage) Name() string { return "harden-runner" }

func (s *HardenStage) Advances() pipeline.State { return pipeline.StateHardened }

func (s *HardenStage) Execute(ctx context.Context, rc *pipeline.RunContext) error {
	cfg := rc.Config.Harden

	for _, w := range permissions.ValidateWorkflow(rc.Config.Permissions) {
		rc.AddWarning(w)
		rc.Logger.Warn(w, nil)
	}

	resolved, err := security.Resolve(cfg.EgressPolicy, cfg.AllowedEndpoints, cfg.Capabilities)
	if err != nil {
		return fmt.Errorf("resolving egress: %w", err)
	}
	if resolved.Policy == security.PolicyAudit {
		rc.AddWarning("egress policy is audit: traffic outside the allowlist is logged, not blocked")
	}

	h := &security.Hardener{
		Config:         resolved,
		DisableSudo:    cfg.DisableSudo,
		AuditDir:       rc.Opts.AuditDir,
		InstallDefault: s.InstallDefault,
		Logger:         rc.Logger,
		DropPrivileges: s.DropPrivileges,
	}
	guard, err := h.Harden(ctx)
	if err != nil {
		return err
	}
	rc.Guard = guard
	return nil
}
