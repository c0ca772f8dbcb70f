package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/secret"
)

// Runner environment variables that expose the OIDC token endpoint. They
// are only present when the job was granted id-token: write.
const (
	EnvRequestURL   = "ACTIONS_ID_TOKEN_REQUEST_URL"
	EnvRequestToken = "ACTIONS_ID_TOKEN_REQUEST_TOKEN"
)

var (
	// ErrUnavailable means the runner exposes no OIDC token endpoint.
	ErrUnavailable = errors.New("trusted publishing unavailable")
	// ErrExchange means the registry refused to mint an upload token.
	ErrExchange = errors.New("token exchange failed")
)

// maxResponseSize bounds every JSON response read by the exchanger.
const maxResponseSize = 1 << 20

// Exchanger performs the trusted publishing flow against a registry.
type Exchanger struct {
	// RepositoryURL is the upload endpoint. The OIDC routes live at the root
	// of the same host.
	RepositoryURL string
	Client        *http.Client
	Env           runtime.Env
	Logger        runtime.Logger
	Redactor      *runtime.Redactor
	Now           func() time.Time
}

// Token is a minted upload token. Close wipes it.
type Token struct {
	Secret   *secret.Buffer
	Audience string
	Claims   *RunnerClaims
}

// Close releases the token memory.
func (t *Token) Close() error {
	if t == nil || t.Secret == nil {
		return nil
	}
	return t.Secret.Close()
}

type audienceResponse struct {
	Audience string `json:"audience"`
}

type oidcResponse struct {
	Value string `json:"value"`
}

type mintRequest struct {
	Token string `json:"token"`
}

type mintError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type mintResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	Message string      `json:"message"`
	Errors  []mintError `json:"errors"`
}

// Available reports whether the runner exposes an OIDC token endpoint.
func (e *Exchanger) Available() bool {
	return e.Env.Get(EnvRequestURL) != "" && e.Env.Get(EnvRequestToken) != ""
}

// Exchange fetches the registry audience, requests a runner OIDC token for
// it, and trades that token for an upload token.
func (e *Exchanger) Exchange(ctx context.Context) (*Token, error) {
	if !e.Available() {
		return nil, fmt.Errorf("%w: %s is not set (is id-token: write granted?)", ErrUnavailable, EnvRequestURL)
	}
	e.Redactor.Track(e.Env.Get(EnvRequestToken))

	base, err := indexBase(e.RepositoryURL)
	if err != nil {
		return nil, err
	}

	audience, err := e.audience(ctx, base)
	if err != nil {
		return nil, err
	}

	idToken, err := e.requestOIDC(ctx, audience)
	if err != nil {
		return nil, err
	}
	e.Redactor.Track(idToken)

	claims, err := DecodeClaims(idToken)
	if err != nil {
		return nil, err
	}
	if claims.Expired(e.now()) {
		return nil, fmt.Errorf("%w: runner oidc token already expired", ErrExchange)
	}
	e.logger().Debug("oidc token issued", claims.LogFields())

	minted, err := e.mint(ctx, base, idToken, claims)
	if err != nil {
		return nil, err
	}
	e.Redactor.Track(minted)

	buf, err := secret.NewFromString(minted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	return &Token{Secret: buf, Audience: audience, Claims: claims}, nil
}

func (e *Exchanger) audience(ctx context.Context, base *url.URL) (string, error) {
	endpoint := base.JoinPath("_", "oidc", "audience").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching oidc audience: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: registry does not support trusted publishing (HTTP %d)", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching oidc audience: HTTP %d", resp.StatusCode)
	}
	var out audienceResponse
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", fmt.Errorf("fetching oidc audience: %w", err)
	}
	if out.Audience == "" {
		return "", fmt.Errorf("fetching oidc audience: empty audience")
	}
	return out.Audience, nil
}

func (e *Exchanger) requestOIDC(ctx context.Context, audience string) (string, error) {
	u, err := url.Parse(e.Env.Get(EnvRequestURL))
	if err != nil {
		return "", fmt.Errorf("%w: invalid %s: %v", ErrUnavailable, EnvRequestURL, err)
	}
	q := u.Query()
	q.Set("audience", audience)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+e.Env.Get(EnvRequestToken))
	req.Header.Set("Accept", "application/json")

	resp, err := e.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting runner oidc token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("requesting runner oidc token: HTTP %d", resp.StatusCode)
	}
	var out oidcResponse
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", fmt.Errorf("requesting runner oidc token: %w", err)
	}
	if out.Value == "" {
		return "", fmt.Errorf("requesting runner oidc token: empty token")
	}
	return out.Value, nil
}

func (e *Exchanger) mint(ctx context.Context, base *url.URL, idToken string, claims *RunnerClaims) (string, error) {
	body, err := json.Marshal(mintRequest{Token: idToken})
	if err != nil {
		return "", err
	}
	endpoint := base.JoinPath("_", "oidc", "mint-token").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("minting upload token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out mintResponse
	if err := decodeJSON(resp.Body, &out); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("minting upload token: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success || out.Token == "" {
		reasons := make([]string, 0, len(out.Errors))
		for _, me := range out.Errors {
			reasons = append(reasons, me.Code+": "+me.Description)
		}
		fields := claims.LogFields()
		fields["status"] = resp.StatusCode
		fields["reasons"] = reasons
		e.logger().Warn("registry rejected oidc token", fields)

		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		if len(reasons) > 0 {
			msg += " (" + strings.Join(reasons, "; ") + ")"
		}
		return "", fmt.Errorf("%w: %s", ErrExchange, msg)
	}
	return out.Token, nil
}

func (e *Exchanger) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

func (e *Exchanger) logger() runtime.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return runtime.NopLogger{}
}

func (e *Exchanger) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// indexBase returns the scheme and host of the repository URL.
func indexBase(repositoryURL string) (*url.URL, error) {
	u, err := url.Parse(repositoryURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid repository url %q", repositoryURL)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(io.LimitReader(r, maxResponseSize)).Decode(v)
}
