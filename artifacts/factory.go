package artifacts

import (
	"context"
	"fmt"
	"net/http"

	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/types"
)

// StoreType represents the type of artifact storage backend.
type StoreType string

const (
	StoreTypeGitHub StoreType = "github"
	StoreTypeFS     StoreType = "fs"
	StoreTypeS3     StoreType = "s3"
	StoreTypeGCS    StoreType = "gcs"
)

// StoreOptions carries per-run inputs every backend needs.
type StoreOptions struct {
	RunID      string
	HTTPClient *http.Client
	Env        runtime.Env
	// Redactor learns the store token so it never reaches the logs.
	Redactor *runtime.Redactor
}

// NewStore builds the store described by ref.
//
// Environment variables:
//   - GITHUB_TOKEN, GITHUB_REPOSITORY, GITHUB_API_URL for the github store
//   - AWS_REGION when store.region is empty for the s3 store
func NewStore(ctx context.Context, ref types.StoreRef, opts StoreOptions) (Store, error) {
	storeType := StoreType(ref.Type)
	if storeType == "" {
		storeType = StoreTypeGitHub
	}

	switch storeType {
	case StoreTypeFS:
		return NewFileStore(ref.Root, opts.RunID)
	case StoreTypeS3:
		region := ref.Region
		if region == "" {
			region = opts.Env.Get("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:     ref.Bucket,
			Region:     region,
			Endpoint:   ref.Endpoint,
			Prefix:     ref.Prefix,
			RunID:      opts.RunID,
			HTTPClient: opts.HTTPClient,
		})
	case StoreTypeGCS:
		return newGCSStore(ctx, ref, opts)
	case StoreTypeGitHub:
		token := opts.Env.Get("GITHUB_TOKEN")
		opts.Redactor.Track(token)
		repo := ref.Repository
		if repo == "" {
			repo = opts.Env.Get("GITHUB_REPOSITORY")
		}
		apiURL := ref.APIURL
		if apiURL == "" {
			apiURL = opts.Env.Get("GITHUB_API_URL")
		}
		return NewGitHubStore(GitHubStoreConfig{
			APIURL:     apiURL,
			Repository: repo,
			RunID:      opts.RunID,
			Token:      token,
			HTTPClient: opts.HTTPClient,
		})
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", storeType)
	}
}

// AsUploader returns the store as an Uploader when the backend supports
// staging bundles.
func AsUploader(s Store) (Uploader, bool) {
	u, ok := s.(Uploader)
	return u, ok
}
