package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/initializ/distpub/types"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newGitHubServer(t *testing.T, artifacts []githubArtifact, archive []byte) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/sdk/actions/runs/99/artifacts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var out githubArtifactList
		for _, a := range artifacts {
			if a.Name == r.URL.Query().Get("name") {
				a.ArchiveDownloadURL = srv.URL + "/archive/" + a.Name
				out.Artifacts = append(out.Artifacts, a)
			}
		}
		out.TotalCount = len(out.Artifacts)
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/archive/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubStore_Fetch(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"pkg-1.0.0.tar.gz":           "sdist",
		"pkg-1.0.0-py3-none-any.whl": "wheel",
	})
	srv := newGitHubServer(t, []githubArtifact{{ID: 1, Name: "python-package-distributions"}}, archive)

	store, err := NewGitHubStore(GitHubStoreConfig{
		APIURL:     srv.URL,
		Repository: "acme/sdk",
		RunID:      "99",
		Token:      "gh-token",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewGitHubStore: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "dist")
	b, err := NewFetcher(store, nil).Fetch(context.Background(), types.ArtifactRef{
		Name: "python-package-distributions",
		Path: dest,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(b.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(b.Files))
	}
}

func TestGitHubStore_NotFoundAndExpired(t *testing.T) {
	srv := newGitHubServer(t, []githubArtifact{{ID: 1, Name: "old", Expired: true}}, nil)
	store, _ := NewGitHubStore(GitHubStoreConfig{
		APIURL: srv.URL, Repository: "acme/sdk", RunID: "99", Token: "gh-token", HTTPClient: srv.Client(),
	})

	for _, name := range []string{"missing", "old"} {
		err := store.Download(context.Background(), name, &stagingSink{dir: t.TempDir()})
		if !errors.Is(err, ErrBundleNotFound) {
			t.Errorf("%s: err = %v, want ErrBundleNotFound", name, err)
		}
	}
}

func TestGitHubStore_ZipSlip(t *testing.T) {
	archive := buildZip(t, map[string]string{"../../evil.sh": "#!/bin/sh"})
	srv := newGitHubServer(t, []githubArtifact{{ID: 1, Name: "b"}}, archive)
	store, _ := NewGitHubStore(GitHubStoreConfig{
		APIURL: srv.URL, Repository: "acme/sdk", RunID: "99", Token: "gh-token", HTTPClient: srv.Client(),
	})

	dest := filepath.Join(t.TempDir(), "dist")
	if _, err := NewFetcher(store, nil).Fetch(context.Background(), types.ArtifactRef{Name: "b", Path: dest}); err == nil {
		t.Fatal("expected error for escaping archive entry")
	}
}

func TestNewGitHubStore_Validation(t *testing.T) {
	cases := []GitHubStoreConfig{
		{Repository: "acme", RunID: "1", Token: "t"},
		{Repository: "acme/sdk", Token: "t"},
		{Repository: "acme/sdk", RunID: "1"},
	}
	for i, cfg := range cases {
		if _, err := NewGitHubStore(cfg); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
