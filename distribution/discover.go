// Package distribution finds and inspects built Python distributions.
package distribution

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoDistributions is returned when a directory holds nothing to upload.
var ErrNoDistributions = errors.New("no distributions found")

// Filetype values understood by the legacy upload API.
const (
	FiletypeSdist = "sdist"
	FiletypeWheel = "bdist_wheel"
)

// Kind reports the upload filetype for a filename, or "" when the file is
// not a distribution.
func Kind(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".whl"):
		return FiletypeWheel
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".zip"):
		return FiletypeSdist
	}
	return ""
}

// Discover walks dir recursively and returns every distribution file in
// lexical path order. Hidden directories are skipped.
func Discover(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && Kind(d.Name()) != "" {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDistributions, dir)
	}
	sort.Strings(out)
	return out, nil
}
