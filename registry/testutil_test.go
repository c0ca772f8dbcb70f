package registry

import (
	"archive/tar"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// upload is one request received by fakeRegistry.
type upload struct {
	User     string
	Password string
	Fields   map[string][]string
	Filename string
	Content  []byte
}

// fakeRegistry is a minimal legacy upload endpoint.
type fakeRegistry struct {
	mu       sync.Mutex
	uploads  []upload
	token    string
	existing map[string]bool
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "__token__" || pass != f.token {
		http.Error(w, "Invalid or non-existent authentication information.", http.StatusForbidden)
		return
	}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	up := upload{User: user, Password: pass, Fields: map[string][]string{}}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		if part.FormName() == "content" {
			up.Filename = part.FileName()
			up.Content = data
			continue
		}
		up.Fields[part.FormName()] = append(up.Fields[part.FormName()], string(data))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existing[up.Filename] {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("400 File already exists ('" + up.Filename + "', with blake2_256 hash '...'). See /help/#file-name-reuse"))
		return
	}
	f.uploads = append(f.uploads, up)
}

func newFakeRegistry(t *testing.T, token string) (*fakeRegistry, *httptest.Server) {
	t.Helper()
	f := &fakeRegistry{token: token, existing: map[string]bool{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeSdist(t *testing.T, dir, name, project, version string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	out, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	top := strings.TrimSuffix(name, ".tar.gz")
	info := "Metadata-Version: 2.1\nName: " + project + "\nVersion: " + version + "\nSummary: test\n"
	if err := tw.WriteHeader(&tar.Header{Name: top + "/PKG-INFO", Mode: 0o644, Size: int64(len(info)), Typeflag: tar.TypeReg}); err != nil {
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
	return p
}
