package stages

import (
	"context"
	"fmt"

	"github.com/initializ/distpub/identity"
	"github.com/initializ/distpub/permissions"
	"github.com/initializ/distpub/pipeline"
	"github.com/initializ/distpub/registry"
)

// PublishStage uploads every distribution of the fetched bundle. It is the
// only stage that receives the API token.
type PublishStage struct{}

func (s *PublishStage) Name() string { return "publish" }

func (s *PublishStage) Advances() pipeline.State { return pipeline.StatePublished }

func (s *PublishStage) ConsumesSecret() bool { return true }

func (s *PublishStage) Execute(ctx context.Context, rc *pipeline.RunContext) error {
	if rc.Bundle == nil || rc.Guard == nil {
		return fmt.Errorf("%w: no fetched bundle", pipeline.ErrOutOfOrder)
	}
	cfg := rc.Config.Publish
	grants := rc.Config.PublishPermissions()
	for _, w := range permissions.ValidateStage(s.Name(), cfg.Permissions) {
		rc.AddWarning(w)
		rc.Logger.Warn(w, nil)
	}

	token := rc.Secret()
	if token == nil || token.Len() == 0 {
		return fmt.Errorf("%w: %s is not set", registry.ErrMissingCredential, cfg.SecretEnv)
	}

	httpClient := rc.Guard.Client()
	resolver := &registry.CredentialResolver{
		APIToken: token,
		Grants:   grants,
		Logger:   rc.Logger,
	}
	if cfg.TrustedPublishing {
		resolver.Exchanger = &identity.Exchanger{
			RepositoryURL: cfg.RepositoryURL,
			Client:        httpClient,
			Env:           rc.Opts.Env,
			Logger:        rc.Logger,
			Redactor:      rc.Redactor,
		}
	}

	p := &registry.Publisher{
		Client:       registry.NewClient(cfg.RepositoryURL, httpClient, rc.Logger),
		Guard:        rc.Guard,
		Credentials:  resolver,
		SkipExisting: cfg.SkipExisting || rc.Opts.SkipExisting,
		Logger:       rc.Logger,
	}
	published, err := p.Publish(ctx, rc.Bundle.Path)
	rc.Published = published
	if err != nil {
		return err
	}
	rc.Logger.Info("distributions published", map[string]any{
		"count":       len(published),
		"repository":  cfg.RepositoryURL,
		"environment": rc.Config.Environment.Name,
	})
	return nil
}
