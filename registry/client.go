package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/initializ/distpub/distribution"
	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/security"
	"github.com/initializ/distpub/validate"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// Client talks to a legacy upload endpoint.
type Client struct {
	RepositoryURL string
	HTTPClient    *http.Client
	UserAgent     string
	Logger        runtime.Logger
}

// NewClient creates a Client. Redirects are not followed: a redirected
// upload almost always means the repository URL is wrong.
func NewClient(repositoryURL string, httpClient *http.Client, logger runtime.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := *httpClient
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	if logger == nil {
		logger = runtime.NopLogger{}
	}
	return &Client{
		RepositoryURL: repositoryURL,
		HTTPClient:    &c,
		UserAgent:     "distpub",
		Logger:        logger,
	}
}

// Upload sends one distribution.
func (c *Client) Upload(ctx context.Context, d *distribution.Distribution, cred *Credential) error {
	if cred == nil || cred.Password == nil {
		return ErrMissingCredential
	}
	body, contentType, err := encodeUpload(d)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RepositoryURL, body)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.UserAgent)
	req.SetBasicAuth(cred.Username, cred.Password.Reveal())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, security.ErrEgressBlocked) {
			return fmt.Errorf("%w: uploading %s: %w", ErrEgressMismatch, d.Filename, err)
		}
		return fmt.Errorf("uploading %s: %w", d.Filename, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return classifyResponse(d.Filename, resp)
}

func classifyResponse(filename string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	reason := responseReason(resp, snippet)

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return fmt.Errorf("%w: %s: repository redirected to %s; check repository_url",
			ErrRejected, filename, resp.Header.Get("Location"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", ErrAuthentication, filename, reason)
	case resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusBadRequest && isConflict(reason):
		return fmt.Errorf("%w: %s: %s", ErrConflict, filename, reason)
	default:
		return fmt.Errorf("%w: %s: %s", ErrRejected, filename, reason)
	}
}

// responseReason prefers the status text, which is where the index puts its
// explanation, and falls back to the body.
func responseReason(resp *http.Response, body []byte) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if reason == "" || reason == http.StatusText(resp.StatusCode) {
		if b := strings.TrimSpace(string(body)); b != "" {
			reason = b
		}
	}
	if reason == "" {
		reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return reason
}

func isConflict(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "already exists") ||
		strings.Contains(lower, "filename has already been used")
}

// encodeUpload builds the multipart body of a file_upload request.
func encodeUpload(d *distribution.Distribution) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	md := d.Metadata
	fields := []struct {
		name  string
		value string
	}{
		{":action", "file_upload"},
		{"protocol_version", "1"},
		{"metadata_version", md.MetadataVersion},
		{"name", md.Name},
		{"version", md.Version},
		{"filetype", d.Filetype},
		{"pyversion", d.PyVersion},
		{"md5_digest", d.Digests.MD5},
		{"sha256_digest", d.Digests.SHA256},
		{"blake2_256_digest", d.Digests.BLAKE2b256},
		{"summary", md.Summary},
		{"description", md.Description},
		{"description_content_type", md.DescriptionContentType},
		{"home_page", md.HomePage},
		{"author", md.Author},
		{"author_email", md.AuthorEmail},
		{"license", md.License},
		{"keywords", md.Keywords},
		{"requires_python", md.RequiresPython},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	multi := map[string][]string{
		"classifiers":   md.Classifiers,
		"requires_dist": md.RequiresDist,
		"project_urls":  md.ProjectURLs,
	}
	for _, name := range []string{"classifiers", "requires_dist", "project_urls"} {
		for _, v := range multi[name] {
			if err := w.WriteField(name, v); err != nil {
				return nil, "", err
			}
		}
	}

	src, err := os.Open(d.Path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = src.Close() }()
	part, err := w.CreateFormFile("content", d.Filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", d.Filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// ProjectURL returns the index page for a release.
func ProjectURL(repositoryURL, project, version string) string {
	u, err := url.Parse(repositoryURL)
	if err != nil || u.Host == "" {
		return ""
	}
	base := url.URL{Scheme: u.Scheme, Host: u.Host}
	return base.JoinPath("project", project, version).String() + "/"
}

// hostPort returns host:port of the repository URL.
func hostPort(repositoryURL string) (string, error) {
	return validate.HostPort(repositoryURL)
}
