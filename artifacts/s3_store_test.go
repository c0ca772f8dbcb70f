package artifacts

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/initializ/distpub/types"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_UploadThenFetch(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newS3StoreWithClient(fake, S3StoreConfig{Bucket: "dists", Prefix: "ci", RunID: "7"})

	src := t.TempDir()
	names := writeFiles(t, src, map[string]string{"pkg-1.0.0.tar.gz": "sdist"})
	if err := store.Upload(context.Background(), "python-package-distributions", src, names); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, ok := fake.objects["ci/7/python-package-distributions/pkg-1.0.0.tar.gz"]; !ok {
		t.Fatalf("object key not run-scoped: %v", fake.objects)
	}

	dest := filepath.Join(t.TempDir(), "dist")
	b, err := NewFetcher(store, nil).Fetch(context.Background(), types.ArtifactRef{
		Name: "python-package-distributions",
		Path: dest,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !b.Verified || len(b.Files) != 1 {
		t.Errorf("bundle = %+v", b)
	}
}

func TestS3Store_NotFound(t *testing.T) {
	store := newS3StoreWithClient(&fakeS3{objects: map[string][]byte{}}, S3StoreConfig{Bucket: "dists", RunID: "7"})
	err := store.Download(context.Background(), "missing", &stagingSink{dir: t.TempDir()})
	if !errors.Is(err, ErrBundleNotFound) {
		t.Fatalf("err = %v, want ErrBundleNotFound", err)
	}
}

func TestS3Store_UploadIsImmutable(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"7/b/x.tar.gz": []byte("x")}}
	store := newS3StoreWithClient(fake, S3StoreConfig{Bucket: "dists", RunID: "7"})
	src := t.TempDir()
	names := writeFiles(t, src, map[string]string{"a.tar.gz": "a"})
	if err := store.Upload(context.Background(), "b", src, names); !errors.Is(err, ErrBundleExists) {
		t.Fatalf("err = %v, want ErrBundleExists", err)
	}
}
