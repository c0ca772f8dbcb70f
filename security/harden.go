package security

import (
	"context"
	"fmt"

	"github.com/initializ/distpub/runtime"
)

// Hardener applies the run's network and privilege restrictions. Once
// Harden returns, the policy stays active until the process exits.
type Hardener struct {
	Config      *EgressConfig
	DisableSudo bool
	// AuditDir receives egress_allowlist.json when non-empty.
	AuditDir string
	// InstallDefault replaces http.DefaultTransport with the guarded one so
	// clients that do not take an explicit transport are covered too.
	InstallDefault bool
	Logger         runtime.Logger

	// DropPrivileges disables privilege escalation. Nil uses the platform
	// implementation.
	DropPrivileges func() error
}

// Harden installs the egress guard and, when requested, disables
// privilege escalation. It returns the guard every later network client
// must use.
func (h *Hardener) Harden(ctx context.Context) (*Guard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := h.Logger
	if logger == nil {
		logger = runtime.NopLogger{}
	}

	guard, err := NewGuard(h.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("building egress guard: %w", err)
	}

	if h.DisableSudo {
		drop := h.DropPrivileges
		if drop == nil {
			drop = disablePrivilegeEscalation
		}
		if err := drop(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrivilegeEscalation, err)
		}
		logger.Info("privilege escalation disabled", nil)
	}

	if h.AuditDir != "" {
		path, err := WriteAllowlist(h.AuditDir, h.Config, h.DisableSudo)
		if err != nil {
			return nil, fmt.Errorf("writing egress allowlist: %w", err)
		}
		logger.Debug("egress allowlist written", map[string]any{"path": path})
	}

	if h.InstallDefault {
		guard.Install()
	}

	logger.Info("egress policy active", map[string]any{
		"policy":    string(h.Config.Policy),
		"endpoints": h.Config.AllEndpoints,
	})
	return guard, nil
}
