package artifacts

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// ManifestFile is stored next to the bundle files by Uploaders. It is not
// materialized in the destination.
const ManifestFile = ".distpub-manifest.json"

// File describes one materialized bundle file.
type File struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	BLAKE3 string `json:"blake3"`
}

// Manifest lists the files of a bundle and their digests.
type Manifest struct {
	Bundle string `json:"bundle"`
	Files  []File `json:"files"`
}

// HashReader copies r to w and returns the byte count and BLAKE3 digest.
func HashReader(w io.Writer, r io.Reader) (int64, string, error) {
	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return n, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// BuildManifest hashes files (relative to root) into a Manifest.
func BuildManifest(bundle, root string, files []string) (*Manifest, error) {
	m := &Manifest{Bundle: bundle}
	for _, rel := range files {
		clean, err := CleanRelPath(rel)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(clean)))
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", rel, err)
		}
		n, sum, err := HashReader(io.Discard, f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", rel, err)
		}
		m.Files = append(m.Files, File{Path: clean, Size: n, BLAKE3: sum})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return m, nil
}

// Marshal encodes the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseManifest decodes a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing bundle manifest: %w", err)
	}
	return &m, nil
}

// Verify checks that got holds exactly the manifest's files with matching
// sizes and digests.
func (m *Manifest) Verify(got []File) error {
	byPath := make(map[string]File, len(got))
	for _, f := range got {
		byPath[f.Path] = f
	}
	for _, want := range m.Files {
		f, ok := byPath[want.Path]
		if !ok {
			return fmt.Errorf("%w: %s missing", ErrIntegrity, want.Path)
		}
		if f.Size != want.Size || f.BLAKE3 != want.BLAKE3 {
			return fmt.Errorf("%w: %s digest mismatch", ErrIntegrity, want.Path)
		}
		delete(byPath, want.Path)
	}
	for p := range byPath {
		return fmt.Errorf("%w: %s not listed in manifest", ErrIntegrity, p)
	}
	return nil
}
