package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/initializ/distpub/identity"
	"github.com/initializ/distpub/permissions"
	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/secret"
	"github.com/initializ/distpub/security"
)

// TokenUsername is the fixed basic-auth user for API tokens.
const TokenUsername = "__token__"

// Credential sources.
const (
	SourceTrustedPublishing = "trusted-publishing"
	SourceAPIToken          = "api-token"
)

// Credential authenticates uploads.
type Credential struct {
	Username string
	Password *secret.Buffer
	Source   string

	owned bool
}

// Close wipes the password when the credential owns it. The API token is
// owned by the caller.
func (c *Credential) Close() error {
	if c == nil || !c.owned {
		return nil
	}
	return c.Password.Close()
}

// CredentialResolver picks the upload credential: a federated token when
// the stage may request one and the exchange succeeds, otherwise the API
// token. An exchange denied by the egress guard fails the run.
type CredentialResolver struct {
	APIToken  *secret.Buffer
	Exchanger *identity.Exchanger // nil disables trusted publishing
	Grants    permissions.GrantSet
	Logger    runtime.Logger
}

// Resolve returns the credential to use for every upload of the run.
func (r *CredentialResolver) Resolve(ctx context.Context) (*Credential, error) {
	if r.APIToken == nil || r.APIToken.Len() == 0 {
		return nil, ErrMissingCredential
	}
	logger := r.Logger
	if logger == nil {
		logger = runtime.NopLogger{}
	}

	switch {
	case r.Exchanger == nil:
		logger.Debug("trusted publishing disabled", nil)
	case !r.Grants.Allows(permissions.IDToken, permissions.LevelWrite):
		logger.Info("id-token: write not granted; using API token", nil)
	case !r.Exchanger.Available():
		logger.Info("runner exposes no oidc endpoint; using API token", nil)
	default:
		tok, err := r.Exchanger.Exchange(ctx)
		if err == nil {
			logger.Info("using trusted publishing token", map[string]any{"audience": tok.Audience})
			return &Credential{
				Username: TokenUsername,
				Password: tok.Secret,
				Source:   SourceTrustedPublishing,
				owned:    true,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("resolving credential: %w", ctx.Err())
		}
		// A blocked connection is a policy failure, never a reason to
		// switch credentials.
		if errors.Is(err, security.ErrEgressBlocked) {
			return nil, fmt.Errorf("trusted publishing: %w", err)
		}
		logger.Warn("trusted publishing exchange failed; falling back to API token", map[string]any{"error": err})
	}

	return &Credential{
		Username: TokenUsername,
		Password: r.APIToken,
		Source:   SourceAPIToken,
	}, nil
}
