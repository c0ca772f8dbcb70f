package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/initializ/distpub/distribution"
	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/security"
)

// Published records one uploaded (or skipped) file.
type Published struct {
	Project  string `json:"project"`
	Version  string `json:"version"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// Publisher uploads every distribution in a directory.
type Publisher struct {
	Client       *Client
	Guard        *security.Guard
	Credentials  *CredentialResolver
	SkipExisting bool
	Logger       runtime.Logger
}

// Publish pre-flights the registry host against the egress guard, inspects
// every distribution under dir, resolves the credential once, and uploads
// the files in path order. The first failure stops the run; files already
// uploaded are returned alongside the error.
func (p *Publisher) Publish(ctx context.Context, dir string) ([]Published, error) {
	logger := p.Logger
	if logger == nil {
		logger = runtime.NopLogger{}
	}

	hp, err := hostPort(p.Client.RepositoryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid repository url: %w", err)
	}
	if p.Guard != nil && !p.Guard.Allows(hp) {
		if p.Guard.Policy() != security.PolicyAudit {
			return nil, fmt.Errorf("%w: %s (policy %s)", ErrEgressMismatch, hp, p.Guard.Policy())
		}
		logger.Warn("registry host outside allowlist (audit)", map[string]any{"host": hp})
	}

	paths, err := distribution.Discover(dir)
	if err != nil {
		return nil, err
	}
	dists := make([]*distribution.Distribution, 0, len(paths))
	for _, path := range paths {
		d, err := distribution.Inspect(path)
		if err != nil {
			return nil, err
		}
		dists = append(dists, d)
	}

	cred, err := p.Credentials.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cred.Close() }()

	var out []Published
	for _, d := range dists {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec := Published{
			Project:  d.Project(),
			Version:  d.Metadata.Version,
			Filename: d.Filename,
			URL:      ProjectURL(p.Client.RepositoryURL, d.Project(), d.Metadata.Version),
		}
		logger.Info("uploading distribution", map[string]any{
			"file":       d.Filename,
			"project":    rec.Project,
			"version":    rec.Version,
			"size":       d.Size,
			"credential": cred.Source,
		})

		err := p.Client.Upload(ctx, d, cred)
		switch {
		case err == nil:
		case errors.Is(err, ErrConflict) && p.SkipExisting:
			logger.Warn("file already exists; skipping", map[string]any{"file": d.Filename})
			rec.Skipped = true
		default:
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
