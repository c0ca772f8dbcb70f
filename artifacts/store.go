// Package artifacts fetches a run's named bundle of build outputs from an
// artifact store into a local directory.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrBundleNotFound means the store has no bundle by that name in this run.
	ErrBundleNotFound = errors.New("bundle not found")
	// ErrEmptyBundle means the bundle exists but holds no files.
	ErrEmptyBundle = errors.New("bundle is empty")
	// ErrBundleExists is returned when uploading over an existing bundle.
	ErrBundleExists = errors.New("bundle already exists")
	// ErrIntegrity means downloaded files do not match the bundle manifest.
	ErrIntegrity = errors.New("bundle integrity check failed")
	// ErrDestination means the destination path cannot be written.
	ErrDestination = errors.New("destination not writable")
)

// Sink receives the files of a bundle during Download.
type Sink interface {
	WriteFile(relPath string, r io.Reader) error
}

// Store is a run-scoped source of named bundles.
type Store interface {
	// Name identifies the backend in logs.
	Name() string
	// Download writes every file of bundle to sink. It returns
	// ErrBundleNotFound when the bundle does not exist in the run.
	Download(ctx context.Context, bundle string, sink Sink) error
}

// Uploader is implemented by stores that can also stage a bundle.
type Uploader interface {
	// Upload stores the files (relative to root) as bundle, together with a
	// manifest of their digests. Bundles are immutable: uploading an
	// existing name returns ErrBundleExists.
	Upload(ctx context.Context, bundle, root string, files []string) error
}

// CleanRelPath validates a bundle-relative path and returns it in slash
// form. Absolute paths and paths escaping the bundle are rejected.
func CleanRelPath(rel string) (string, error) {
	rel = filepath.ToSlash(rel)
	if rel == "" || strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("invalid bundle path %q", rel)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("bundle path %q escapes the bundle", rel)
	}
	return clean, nil
}

func bundleKey(runID, bundle string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if bundle == "" || strings.ContainsAny(bundle, `/\`) || bundle == "." || bundle == ".." {
		return "", fmt.Errorf("invalid bundle name %q", bundle)
	}
	return runID + "/" + bundle + "/", nil
}
