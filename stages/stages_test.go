package stages

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/klauspost/compress/gzip"

	"github.com/initializ/distpub/artifacts"
	"github.com/initializ/distpub/pipeline"
	"github.com/initializ/distpub/identity"
	"github.com/initializ/distpub/registry"
	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/secret"
	"github.com/initializ/distpub/security"
	"github.com/initializ/distpub/types"
)

type recordingRegistry struct {
	mu    sync.Mutex
	files []string
	auth  []string
}

const mintedToken = "pypi-minted-upload-token"

func (r *recordingRegistry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/_/oidc/audience":
		_, _ = w.Write([]byte(`{"audience":"testpypi"}`))
		return
	case "/_/oidc/mint-token":
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "token": mintedToken})
		return
	}
	user, pass, _ := req.BasicAuth()
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, hdr, err := req.FormFile("content")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.files = append(r.files, hdr.Filename)
	r.auth = append(r.auth, user+":"+pass)
	r.mu.Unlock()
}

func writeSdist(t *testing.T, dir, name, project, version string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	info := "Metadata-Version: 2.1\nName: " + project + "\nVersion: " + version + "\n"
	if err := tw.WriteHeader(&tar.Header{Name: "pkg-" + version + "/PKG-INFO", Mode: 0o644, Size: int64(len(info)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(info)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	cfg      *types.WorkflowConfig
	registry *recordingRegistry
	regHost  string
	store    *artifacts.FileStore
	env      runtime.Env
	workDir  string
	auditDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := &recordingRegistry{}
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)

	storeRoot := t.TempDir()
	store, err := artifacts.NewFileStore(storeRoot, "run-1")
	if err != nil {
		t.Fatal(err)
	}

	cfg := types.DefaultWorkflowConfig()
	cfg.Harden.AllowedEndpoints = []string{u.Host}
	cfg.Artifact.Store = types.StoreRef{Type: "fs", Root: storeRoot}
	cfg.Publish.RepositoryURL = srv.URL + "/legacy/"
	cfg.Publish.TrustedPublishing = false

	return &fixture{
		cfg:      cfg,
		registry: reg,
		regHost:  u.Host,
		store:    store,
		workDir:  t.TempDir(),
		auditDir: t.TempDir(),
	}
}

func (f *fixture) run(t *testing.T, token string) (*pipeline.RunContext, error) {
	t.Helper()
	var buf *secret.Buffer
	if token != "" {
		var err error
		buf, err = secret.NewFromString(token)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = buf.Close() })
	}
	rc := pipeline.NewRunContext(pipeline.Options{
		WorkDir:  f.workDir,
		RunID:    "run-1",
		AuditDir: f.auditDir,
		Env:      f.env,
	}, f.cfg, nil, buf)

	p := pipeline.New(
		&HardenStage{DropPrivileges: func() error { return nil }},
		&FetchStage{},
		&PublishStage{},
	)
	return rc, p.Run(context.Background(), rc)
}

func TestPipeline_PublishesBundle(t *testing.T) {
	f := newFixture(t)
	src := t.TempDir()
	writeSdist(t, src, "pkg-1.0.0.tar.gz", "python-kraken-sdk", "1.0.0")
	if err := f.store.Upload(context.Background(), types.DefaultBundleName, src, []string{"pkg-1.0.0.tar.gz"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rc, err := f.run(t, "pypi-secret-token")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.State() != pipeline.StateSucceeded {
		t.Errorf("state = %s", rc.State())
	}
	if len(f.registry.files) != 1 || f.registry.files[0] != "pkg-1.0.0.tar.gz" {
		t.Fatalf("uploaded = %v", f.registry.files)
	}
	if f.registry.auth[0] != "__token__:pypi-secret-token" {
		t.Errorf("auth = %q", f.registry.auth[0])
	}
	if len(rc.Published) != 1 || rc.Published[0].Project != "python-kraken-sdk" {
		t.Errorf("published = %+v", rc.Published)
	}
	if _, err := os.Stat(filepath.Join(f.workDir, "dist", "pkg-1.0.0.tar.gz")); err != nil {
		t.Errorf("bundle not materialized under dist/: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.auditDir, security.AllowlistFile)); err != nil {
		t.Errorf("allowlist not written: %v", err)
	}
}

func TestPipeline_MissingBundleStopsBeforePublish(t *testing.T) {
	f := newFixture(t)

	rc, err := f.run(t, "pypi-secret-token")
	if !errors.Is(err, artifacts.ErrBundleNotFound) {
		t.Fatalf("err = %v, want ErrBundleNotFound", err)
	}
	if pipeline.Classify(err) != pipeline.CategoryMissingInput {
		t.Errorf("category = %s", pipeline.Classify(err))
	}
	if len(f.registry.files) != 0 {
		t.Error("publish ran after a failed fetch")
	}
	if rc.State() != pipeline.StateFailed {
		t.Errorf("state = %s", rc.State())
	}
}

func TestPipeline_RegistryOutsideAllowlist(t *testing.T) {
	f := newFixture(t)
	f.cfg.Harden.AllowedEndpoints = []string{"test.pypi.org:443"}
	src := t.TempDir()
	writeSdist(t, src, "pkg-1.0.0.tar.gz", "python-kraken-sdk", "1.0.0")
	if err := f.store.Upload(context.Background(), types.DefaultBundleName, src, []string{"pkg-1.0.0.tar.gz"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	_, err := f.run(t, "pypi-secret-token")
	if !errors.Is(err, registry.ErrEgressMismatch) {
		t.Fatalf("err = %v, want ErrEgressMismatch", err)
	}
	if len(f.registry.files) != 0 {
		t.Error("upload should not be attempted")
	}
}

func TestPipeline_MissingSecret(t *testing.T) {
	f := newFixture(t)
	src := t.TempDir()
	writeSdist(t, src, "pkg-1.0.0.tar.gz", "python-kraken-sdk", "1.0.0")
	if err := f.store.Upload(context.Background(), types.DefaultBundleName, src, []string{"pkg-1.0.0.tar.gz"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	_, err := f.run(t, "")
	if !errors.Is(err, registry.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if len(f.registry.files) != 0 {
		t.Error("upload without credential")
	}
}

func TestHardenStage_PrivilegeDropFailure(t *testing.T) {
	f := newFixture(t)
	rc := pipeline.NewRunContext(pipeline.Options{}, f.cfg, nil, nil)
	stage := &HardenStage{DropPrivileges: func() error { return errors.New("prctl: operation not permitted") }}

	err := stage.Execute(context.Background(), rc)
	if !errors.Is(err, security.ErrPrivilegeEscalation) {
		t.Fatalf("err = %v, want ErrPrivilegeEscalation", err)
	}
	if rc.Guard != nil {
		t.Error("guard should not be set on failure")
	}
}

func TestHardenStage_AuditWarning(t *testing.T) {
	f := newFixture(t)
	f.cfg.Harden.EgressPolicy = "audit"
	rc := pipeline.NewRunContext(pipeline.Options{}, f.cfg, nil, nil)
	stage := &HardenStage{DropPrivileges: func() error { return nil }}

	if err := stage.Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rc.Guard == nil || rc.Guard.Policy() != security.PolicyAudit {
		t.Fatalf("guard = %v", rc.Guard)
	}
	if len(rc.Warnings) == 0 {
		t.Error("audit policy should produce a warning")
	}
}

func TestFetchStage_RequiresGuard(t *testing.T) {
	f := newFixture(t)
	rc := pipeline.NewRunContext(pipeline.Options{RunID: "run-1"}, f.cfg, nil, nil)
	err := (&FetchStage{}).Execute(context.Background(), rc)
	if !errors.Is(err, pipeline.ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
}

// runnerOIDC serves the runner's id-token endpoint and returns its host.
func runnerOIDC(t *testing.T) string {
	t.Helper()
	claims := identity.RunnerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "repo:python-kraken-sdk/python-kraken-sdk:environment:testpypi",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
		Environment: "testpypi",
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("runner-key"))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("audience") != "testpypi" || r.Header.Get("Authorization") != "Bearer runner-request-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"value": idToken})
	}))
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	return u.Host
}

func (f *fixture) enableTrustedPublishing(runnerHost string) {
	f.cfg.Publish.TrustedPublishing = true
	f.env = runtime.Env{Overlay: map[string]string{
		identity.EnvRequestURL:   "http://" + runnerHost + "/token?api-version=2.0",
		identity.EnvRequestToken: "runner-request-token",
	}}
}

func (f *fixture) pushBundle(t *testing.T) {
	t.Helper()
	src := t.TempDir()
	writeSdist(t, src, "pkg-1.0.0.tar.gz", "python-kraken-sdk", "1.0.0")
	if err := f.store.Upload(context.Background(), types.DefaultBundleName, src, []string{"pkg-1.0.0.tar.gz"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestPipeline_TrustedPublishingThroughGuard(t *testing.T) {
	f := newFixture(t)
	runnerHost := runnerOIDC(t)
	f.cfg.Harden.AllowedEndpoints = []string{f.regHost, runnerHost}
	f.enableTrustedPublishing(runnerHost)
	f.pushBundle(t)

	rc, err := f.run(t, "pypi-secret-token")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.State() != pipeline.StateSucceeded {
		t.Errorf("state = %s", rc.State())
	}
	if len(f.registry.auth) != 1 || f.registry.auth[0] != "__token__:"+mintedToken {
		t.Fatalf("auth = %v, want the minted token", f.registry.auth)
	}
	if v := rc.Guard.Violations(); len(v) != 0 {
		t.Errorf("violations = %v", v)
	}
}

func TestPipeline_TrustedPublishingBlockedByEgress(t *testing.T) {
	f := newFixture(t)
	runnerHost := runnerOIDC(t)
	f.enableTrustedPublishing(runnerHost)
	f.pushBundle(t)

	rc, err := f.run(t, "pypi-secret-token")
	if !errors.Is(err, security.ErrEgressBlocked) {
		t.Fatalf("err = %v, want ErrEgressBlocked", err)
	}
	if pipeline.Classify(err) != pipeline.CategoryPolicy {
		t.Errorf("category = %s, want policy", pipeline.Classify(err))
	}
	if len(f.registry.files) != 0 {
		t.Error("upload went ahead on the API token after a blocked exchange")
	}
	if rc.State() != pipeline.StateFailed {
		t.Errorf("state = %s", rc.State())
	}
}
