package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps bundles on a local or mounted filesystem under
// <root>/<run-id>/<bundle>/.
type FileStore struct {
	root  string
	runID string
}

// NewFileStore creates a filesystem-backed store scoped to runID.
func NewFileStore(root, runID string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("fs store: root is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("fs store: run id is required")
	}
	return &FileStore{root: root, runID: runID}, nil
}

func (s *FileStore) Name() string { return "fs" }

func (s *FileStore) bundleDir(bundle string) (string, error) {
	key, err := bundleKey(s.runID, bundle)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Download streams every regular file of the bundle to sink.
func (s *FileStore) Download(ctx context.Context, bundle string, sink Sink) error {
	dir, err := s.bundleDir(bundle)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s (run %s)", ErrBundleNotFound, bundle, s.runID)
	}
	if err != nil {
		return fmt.Errorf("fs store: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("fs store: %s is not a directory", dir)
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("fs store: %w", err)
		}
		defer func() { _ = f.Close() }()
		return sink.WriteFile(filepath.ToSlash(rel), f)
	})
}

// Upload copies files into a temporary directory and renames it into
// place, so a bundle is either fully present or absent.
func (s *FileStore) Upload(ctx context.Context, bundle, root string, files []string) error {
	dir, err := s.bundleDir(bundle)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s (run %s)", ErrBundleExists, bundle, s.runID)
	}

	manifest, err := BuildManifest(bundle, root, files)
	if err != nil {
		return err
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("fs store: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, ".upload-*")
	if err != nil {
		return fmt.Errorf("fs store: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	for _, f := range manifest.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(filepath.Join(root, filepath.FromSlash(f.Path)), filepath.Join(tmp, filepath.FromSlash(f.Path))); err != nil {
			return fmt.Errorf("fs store: %w", err)
		}
	}
	data, err := manifest.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("fs store: %w", err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		return fmt.Errorf("fs store: committing bundle: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
