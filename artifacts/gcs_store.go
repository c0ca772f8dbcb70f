//go:build gcp

package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsAPI is the subset of Cloud Storage the store uses.
type gcsAPI interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	NewReader(ctx context.Context, bucket, name string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, bucket, name string) io.WriteCloser
}

// storageClient adapts *storage.Client to gcsAPI.
type storageClient struct {
	client *storage.Client
}

func (c storageClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
}

func (c storageClient) NewReader(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(name).NewReader(ctx)
}

func (c storageClient) NewWriter(ctx context.Context, bucket, name string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	return w
}

// GCSStore keeps bundles in a Cloud Storage bucket under
// <prefix><run-id>/<bundle>/.
type GCSStore struct {
	client gcsAPI
	bucket string
	prefix string
	runID  string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
	RunID  string
}

// NewGCSStore creates a GCS-backed bundle store. Credentials come from
// application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs store: bucket is required")
	}
	client, err := storage.NewClient(ctx, option.WithUserAgent("distpub"))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return newGCSStoreWithClient(storageClient{client: client}, cfg), nil
}

func newGCSStoreWithClient(client gcsAPI, cfg GCSStoreConfig) *GCSStore {
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: prefix, runID: cfg.RunID}
}

func (s *GCSStore) Name() string { return "gcs" }

func (s *GCSStore) bundlePrefix(bundle string) (string, error) {
	key, err := bundleKey(s.runID, bundle)
	if err != nil {
		return "", err
	}
	return s.prefix + key, nil
}

// Download lists the bundle prefix and streams each object to sink.
func (s *GCSStore) Download(ctx context.Context, bundle string, sink Sink) error {
	prefix, err := s.bundlePrefix(bundle)
	if err != nil {
		return err
	}

	names, err := s.client.List(ctx, s.bucket, prefix)
	if err != nil {
		return fmt.Errorf("gcs list failed: %w", err)
	}
	found := 0
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			continue
		}
		r, err := s.client.NewReader(ctx, s.bucket, name)
		if err != nil {
			return fmt.Errorf("gcs read failed for %s: %w", name, err)
		}
		err = sink.WriteFile(strings.TrimPrefix(name, prefix), r)
		_ = r.Close()
		if err != nil {
			return err
		}
		found++
	}
	if found == 0 {
		return fmt.Errorf("%w: %s (run %s)", ErrBundleNotFound, bundle, s.runID)
	}
	return nil
}

// Upload writes each file and then the manifest.
func (s *GCSStore) Upload(ctx context.Context, bundle, root string, files []string) error {
	prefix, err := s.bundlePrefix(bundle)
	if err != nil {
		return err
	}
	existing, err := s.client.List(ctx, s.bucket, prefix)
	if err != nil {
		return fmt.Errorf("gcs list failed: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s (run %s)", ErrBundleExists, bundle, s.runID)
	}

	manifest, err := BuildManifest(bundle, root, files)
	if err != nil {
		return err
	}
	for _, f := range manifest.Files {
		src, err := os.Open(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			return fmt.Errorf("gcs store: %w", err)
		}
		err = s.write(ctx, prefix+f.Path, src)
		_ = src.Close()
		if err != nil {
			return err
		}
	}
	data, err := manifest.Marshal()
	if err != nil {
		return err
	}
	return s.write(ctx, prefix+ManifestFile, bytes.NewReader(data))
}

func (s *GCSStore) write(ctx context.Context, name string, r io.Reader) error {
	w := s.client.NewWriter(ctx, s.bucket, name)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}
