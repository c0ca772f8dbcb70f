package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DefaultGitHubAPIURL is the public GitHub REST endpoint.
const DefaultGitHubAPIURL = "https://api.github.com"

// GitHubStore reads bundles uploaded by earlier jobs of the same workflow
// run through the GitHub Actions artifacts API.
type GitHubStore struct {
	apiURL     string
	repository string
	runID      string
	token      string
	client     *http.Client
}

// GitHubStoreConfig holds configuration for GitHubStore.
type GitHubStoreConfig struct {
	APIURL     string
	Repository string // owner/repo
	RunID      string
	Token      string
	HTTPClient *http.Client
}

type githubArtifact struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	SizeInBytes        int64  `json:"size_in_bytes"`
	ArchiveDownloadURL string `json:"archive_download_url"`
	Expired            bool   `json:"expired"`
}

type githubArtifactList struct {
	TotalCount int              `json:"total_count"`
	Artifacts  []githubArtifact `json:"artifacts"`
}

// NewGitHubStore creates a store backed by the Actions artifacts API.
func NewGitHubStore(cfg GitHubStoreConfig) (*GitHubStore, error) {
	if cfg.Repository == "" || !strings.Contains(cfg.Repository, "/") {
		return nil, fmt.Errorf("github store: repository must be owner/repo, got %q", cfg.Repository)
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("github store: run id is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github store: token is required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultGitHubAPIURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHubStore{
		apiURL:     apiURL,
		repository: cfg.Repository,
		runID:      cfg.RunID,
		token:      cfg.Token,
		client:     client,
	}, nil
}

func (s *GitHubStore) Name() string { return "github" }

// Download finds the run's artifact named bundle, downloads its zip
// archive, and extracts every entry to sink.
func (s *GitHubStore) Download(ctx context.Context, bundle string, sink Sink) error {
	if _, err := bundleKey(s.runID, bundle); err != nil {
		return err
	}
	art, err := s.find(ctx, bundle)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "distpub-artifact-*.zip")
	if err != nil {
		return fmt.Errorf("github store: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := s.fetchArchive(ctx, art.ArchiveDownloadURL, tmp)
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return fmt.Errorf("github store: reading archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("github store: opening %s: %w", f.Name, err)
		}
		err = sink.WriteFile(f.Name, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *GitHubStore) find(ctx context.Context, bundle string) (*githubArtifact, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/actions/runs/%s/artifacts?name=%s&per_page=100",
		s.apiURL, s.repository, url.PathEscape(s.runID), url.QueryEscape(bundle))

	resp, err := s.do(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s (run %s)", ErrBundleNotFound, bundle, s.runID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github store: listing artifacts: HTTP %d", resp.StatusCode)
	}

	var list githubArtifactList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("github store: decoding artifact list: %w", err)
	}
	for i := range list.Artifacts {
		a := &list.Artifacts[i]
		if a.Name == bundle && !a.Expired {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (run %s)", ErrBundleNotFound, bundle, s.runID)
}

func (s *GitHubStore) fetchArchive(ctx context.Context, archiveURL string, w io.Writer) (int64, error) {
	resp, err := s.do(ctx, archiveURL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusGone {
		return 0, fmt.Errorf("%w: artifact archive expired", ErrBundleNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("github store: downloading archive: HTTP %d", resp.StatusCode)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("github store: downloading archive: %w", err)
	}
	return n, nil
}

// do issues an authenticated GET. The client drops the Authorization
// header when the archive redirect leaves the API host.
func (s *GitHubStore) do(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("github store: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github store: %w", err)
	}
	return resp, nil
}
