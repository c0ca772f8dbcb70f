package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps bundles in an S3 bucket under <prefix><run-id>/<bundle>/.
type S3Store struct {
	client s3API
	bucket string
	prefix string
	runID  string
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack)
	Prefix   string
	RunID    string
	// HTTPClient carries requests through the egress guard.
	HTTPClient *http.Client
}

// NewS3Store creates an S3-backed bundle store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(cfg.HTTPClient))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3StoreWithClient(client, cfg), nil
}

func newS3StoreWithClient(client s3API, cfg S3StoreConfig) *S3Store {
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: prefix, runID: cfg.RunID}
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) bundlePrefix(bundle string) (string, error) {
	key, err := bundleKey(s.runID, bundle)
	if err != nil {
		return "", err
	}
	return s.prefix + key, nil
}

// Download lists the bundle prefix and streams each object to sink.
func (s *S3Store) Download(ctx context.Context, bundle string, sink Sink) error {
	prefix, err := s.bundlePrefix(bundle)
	if err != nil {
		return err
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: %s (run %s)", ErrBundleNotFound, bundle, s.runID)
	}

	for _, key := range keys {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("s3 get failed for %s: %w", key, err)
		}
		err = sink.WriteFile(strings.TrimPrefix(key, prefix), out.Body)
		_ = out.Body.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Upload puts each file and then the manifest. The manifest is written
// last so a partially uploaded bundle fails verification.
func (s *S3Store) Upload(ctx context.Context, bundle, root string, files []string) error {
	prefix, err := s.bundlePrefix(bundle)
	if err != nil {
		return err
	}
	existing, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("s3 list failed: %w", err)
	}
	if len(existing.Contents) > 0 {
		return fmt.Errorf("%w: %s (run %s)", ErrBundleExists, bundle, s.runID)
	}

	manifest, err := BuildManifest(bundle, root, files)
	if err != nil {
		return err
	}
	for _, f := range manifest.Files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			return fmt.Errorf("s3 store: %w", err)
		}
		if err := s.put(ctx, prefix+f.Path, data); err != nil {
			return err
		}
	}
	data, err := manifest.Marshal()
	if err != nil {
		return err
	}
	return s.put(ctx, prefix+ManifestFile, data)
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed for %s: %w", key, err)
	}
	return nil
}
