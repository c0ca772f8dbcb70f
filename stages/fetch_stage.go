package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/initializ/distpub/artifacts"
	"github.com/initializ/distpub/permissions"
	"github.com/initializ/distpub/pipeline"
	"github.com/initializ/distpub/types"
)

// StoreFactory builds the artifact store for a run.
type StoreFactory func(ctx context.Context, ref types.StoreRef, opts artifacts.StoreOptions) (artifacts.Store, error)

// FetchStage downloads the distribution bundle into the configured path.
type FetchStage struct {
	// NewStore defaults to artifacts.NewStore.
	NewStore StoreFactory
}

func (s *FetchStage) Name() string { return "fetch-artifacts" }

func (s *FetchStage) Advances() pipeline.State { return pipeline.StateFetched }

func (s *FetchStage) Execute(ctx context.Context, rc *pipeline.RunContext) error {
	if rc.Guard == nil {
		return fmt.Errorf("%w: egress guard not installed", pipeline.ErrOutOfOrder)
	}
	ref := rc.Config.Artifact
	if ref.Store.Type == "" || ref.Store.Type == string(artifacts.StoreTypeGitHub) {
		if err := rc.Config.Permissions.Require(permissions.Actions, permissions.LevelRead); err != nil {
			return fmt.Errorf("downloading run artifacts: %w", err)
		}
	}

	newStore := s.NewStore
	if newStore == nil {
		newStore = artifacts.NewStore
	}
	store, err := newStore(ctx, ref.Store, artifacts.StoreOptions{
		RunID:      rc.Opts.RunID,
		HTTPClient: rc.Guard.Client(),
		Env:        rc.Opts.Env,
		Redactor:   rc.Redactor,
	})
	if err != nil {
		return fmt.Errorf("creating %s store: %w", ref.Store.Type, err)
	}

	if !filepath.IsAbs(ref.Path) && rc.Opts.WorkDir != "" {
		ref.Path = filepath.Join(rc.Opts.WorkDir, ref.Path)
	}
	bundle, err := artifacts.NewFetcher(store, rc.Logger).Fetch(ctx, ref)
	if err != nil {
		return err
	}
	rc.Bundle = bundle
	return nil
}
