package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/types"
)

const (
	stagingPattern  = ".distpub-staging-*"
	backupPattern   = ".distpub-replaced-*"
	maxManifestSize = 1 << 20
)

// Bundle is a fetched, verified bundle materialized on disk.
type Bundle struct {
	Name  string
	Path  string // absolute destination directory
	Store string
	Files []File
	// Verified is true when the store supplied a manifest and every file
	// matched it.
	Verified bool
}

// TotalSize returns the sum of the file sizes.
func (b *Bundle) TotalSize() int64 {
	var n int64
	for _, f := range b.Files {
		n += f.Size
	}
	return n
}

// Fetcher downloads a named bundle into a destination directory. A fetch
// either materializes the whole bundle or leaves the destination as it
// found it.
type Fetcher struct {
	Store  Store
	Logger runtime.Logger
}

// NewFetcher creates a Fetcher. A nil logger discards output.
func NewFetcher(store Store, logger runtime.Logger) *Fetcher {
	if logger == nil {
		logger = runtime.NopLogger{}
	}
	return &Fetcher{Store: store, Logger: logger}
}

// Fetch downloads ref.Name into ref.Path.
func (f *Fetcher) Fetch(ctx context.Context, ref types.ArtifactRef) (*Bundle, error) {
	if ref.Name == "" {
		return nil, fmt.Errorf("artifact name is required")
	}
	if ref.Path == "" {
		return nil, fmt.Errorf("artifact path is required")
	}
	dest, err := filepath.Abs(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", ref.Path, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDestination, dest, err)
	}
	staging, err := os.MkdirTemp(dest, stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDestination, dest, err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	f.Logger.Info("downloading bundle", map[string]any{
		"bundle": ref.Name,
		"store":  f.Store.Name(),
		"dest":   dest,
	})

	sink := &stagingSink{dir: staging}
	if err := f.Store.Download(ctx, ref.Name, sink); err != nil {
		return nil, fmt.Errorf("downloading %s from %s store: %w", ref.Name, f.Store.Name(), err)
	}

	bundle := &Bundle{
		Name:  ref.Name,
		Path:  dest,
		Store: f.Store.Name(),
		Files: sink.files,
	}
	sort.Slice(bundle.Files, func(i, j int) bool { return bundle.Files[i].Path < bundle.Files[j].Path })

	if len(bundle.Files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBundle, ref.Name)
	}
	if sink.manifest != nil {
		m, err := ParseManifest(sink.manifest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		if err := m.Verify(bundle.Files); err != nil {
			return nil, err
		}
		bundle.Verified = true
	} else {
		f.Logger.Warn("bundle has no manifest; digests not verified", map[string]any{"bundle": ref.Name})
	}

	if err := commit(staging, dest, bundle.Files); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDestination, err)
	}

	f.Logger.Info("bundle fetched", map[string]any{
		"bundle":   ref.Name,
		"files":    len(bundle.Files),
		"bytes":    bundle.TotalSize(),
		"verified": bundle.Verified,
	})
	return bundle, nil
}

// commit moves staged files into dest. Files it replaces are parked in a
// hidden directory under dest first. On failure every moved file and every
// directory it created are removed, and the replaced files are put back.
func commit(staging, dest string, files []File) (err error) {
	var backupDir string
	defer func() {
		if backupDir != "" {
			_ = os.RemoveAll(backupDir)
		}
	}()
	var moved []string
	var created []string
	var replaced [][2]string // {backup, original}
	defer func() {
		if err == nil {
			return
		}
		for i := len(moved) - 1; i >= 0; i-- {
			_ = os.Remove(moved[i])
		}
		for i := len(replaced) - 1; i >= 0; i-- {
			_ = os.Rename(replaced[i][0], replaced[i][1])
		}
		for i := len(created) - 1; i >= 0; i-- {
			_ = os.RemoveAll(created[i])
		}
	}()

	for _, file := range files {
		src := filepath.Join(staging, filepath.FromSlash(file.Path))
		dst := filepath.Join(dest, filepath.FromSlash(file.Path))

		dirs, err := missingDirs(dest, filepath.Dir(dst))
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		created = append(created, dirs...)

		info, err := os.Lstat(dst)
		switch {
		case err == nil && info.IsDir():
			return fmt.Errorf("%s exists and is a directory", dst)
		case err == nil:
			if backupDir == "" {
				if backupDir, err = os.MkdirTemp(dest, backupPattern); err != nil {
					return err
				}
			}
			backup := filepath.Join(backupDir, filepath.FromSlash(file.Path))
			if err := os.MkdirAll(filepath.Dir(backup), 0o700); err != nil {
				return err
			}
			if err := os.Rename(dst, backup); err != nil {
				return err
			}
			replaced = append(replaced, [2]string{backup, dst})
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}

		if err := os.Rename(src, dst); err != nil {
			return err
		}
		moved = append(moved, dst)
	}
	return nil
}

// missingDirs returns the directories between root and dir that do not
// exist yet, outermost first.
func missingDirs(root, dir string) ([]string, error) {
	var out []string
	for d := dir; d != root && strings.HasPrefix(d, root); d = filepath.Dir(d) {
		_, err := os.Stat(d)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		out = append([]string{d}, out...)
	}
	return out, nil
}

// stagingSink writes bundle files under dir and records their digests. The
// manifest is kept in memory instead of being materialized.
type stagingSink struct {
	dir      string
	files    []File
	seen     map[string]bool
	manifest []byte
}

func (s *stagingSink) WriteFile(relPath string, r io.Reader) error {
	clean, err := CleanRelPath(relPath)
	if err != nil {
		return err
	}
	if clean == ManifestFile {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.LimitReader(r, maxManifestSize+1)); err != nil {
			return fmt.Errorf("reading bundle manifest: %w", err)
		}
		if buf.Len() > maxManifestSize {
			return fmt.Errorf("%w: manifest too large", ErrIntegrity)
		}
		s.manifest = buf.Bytes()
		return nil
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[clean] {
		return fmt.Errorf("bundle lists %s twice", clean)
	}
	s.seen[clean] = true

	target := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	n, sum, err := HashReader(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", clean, err)
	}
	s.files = append(s.files, File{Path: clean, Size: n, BLAKE3: sum})
	return nil
}
