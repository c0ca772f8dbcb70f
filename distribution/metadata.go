package distribution

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// maxMetadataSize bounds how much of a PKG-INFO or METADATA file is read.
const maxMetadataSize = 4 << 20

// Metadata is the subset of core metadata sent with an upload.
type Metadata struct {
	MetadataVersion        string
	Name                   string
	Version                string
	Summary                string
	Description            string
	DescriptionContentType string
	HomePage               string
	Author                 string
	AuthorEmail            string
	License                string
	Keywords               string
	RequiresPython         string
	Classifiers            []string
	RequiresDist           []string
	ProjectURLs            []string
}

// Distribution is one inspected file ready for upload.
type Distribution struct {
	Path      string
	Filename  string
	Filetype  string
	PyVersion string
	Size      int64
	Metadata  Metadata
	Digests   Digests
}

// Inspect reads the core metadata and digests of a distribution. When the
// archive carries no readable metadata, name and version come from the
// filename.
func Inspect(p string) (*Distribution, error) {
	filename := filepath.Base(p)
	filetype := Kind(filename)
	if filetype == "" {
		return nil, fmt.Errorf("%s is not a distribution", filename)
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", filename)
	}

	d := &Distribution{
		Path:     p,
		Filename: filename,
		Filetype: filetype,
		Size:     info.Size(),
	}

	md, err := readMetadata(p, filename)
	if err != nil && !errors.Is(err, errNoMetadata) {
		return nil, fmt.Errorf("reading metadata from %s: %w", filename, err)
	}
	if md != nil {
		d.Metadata = *md
	}

	name, version, pyversion := ParseFilename(filename)
	if d.Metadata.Name == "" {
		d.Metadata.Name = name
	}
	if d.Metadata.Version == "" {
		d.Metadata.Version = version
	}
	if d.Metadata.MetadataVersion == "" {
		d.Metadata.MetadataVersion = "1.0"
	}
	if d.Metadata.Name == "" || d.Metadata.Version == "" {
		return nil, fmt.Errorf("cannot determine name and version of %s", filename)
	}
	d.PyVersion = pyversion

	d.Digests, err = Digest(p)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Project returns the normalized project name.
func (d *Distribution) Project() string {
	return NormalizeName(d.Metadata.Name)
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName lowercases a project name and collapses separator runs to a
// single dash.
func NormalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

// ParseFilename extracts name, version and python tag from a distribution
// filename. Sdists report "source" as their python tag.
func ParseFilename(filename string) (name, version, pyversion string) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".whl"):
		parts := strings.Split(filename[:len(filename)-len(".whl")], "-")
		if len(parts) < 5 {
			return "", "", ""
		}
		return parts[0], parts[1], parts[len(parts)-3]
	case strings.HasSuffix(lower, ".tar.gz"):
		base := filename[:len(filename)-len(".tar.gz")]
		name, version = splitSdist(base)
		return name, version, "source"
	case strings.HasSuffix(lower, ".zip"):
		base := filename[:len(filename)-len(".zip")]
		name, version = splitSdist(base)
		return name, version, "source"
	}
	return "", "", ""
}

func splitSdist(base string) (string, string) {
	i := strings.LastIndex(base, "-")
	if i <= 0 || i == len(base)-1 {
		return "", ""
	}
	return base[:i], base[i+1:]
}

var errNoMetadata = errors.New("no metadata file")

func readMetadata(p, filename string) (*Metadata, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"):
		return readTarMetadata(p)
	case strings.HasSuffix(lower, ".whl"):
		return readZipMetadata(p, isWheelMetadata)
	default:
		return readZipMetadata(p, isSdistMetadata)
	}
}

// isSdistMetadata matches <top>/PKG-INFO.
func isSdistMetadata(name string) bool {
	dir, file := path.Split(strings.TrimPrefix(name, "./"))
	return file == "PKG-INFO" && strings.Count(dir, "/") == 1
}

// isWheelMetadata matches <name>.dist-info/METADATA.
func isWheelMetadata(name string) bool {
	dir, file := path.Split(name)
	return file == "METADATA" && strings.Count(dir, "/") == 1 && strings.HasSuffix(dir, ".dist-info/")
}

func readTarMetadata(p string) (*Metadata, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, errNoMetadata
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeReg && isSdistMetadata(hdr.Name) {
			return ParseMetadata(io.LimitReader(tr, maxMetadataSize))
		}
	}
}

func readZipMetadata(p string, match func(string) bool) (*Metadata, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if !match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		md, err := ParseMetadata(io.LimitReader(rc, maxMetadataSize))
		_ = rc.Close()
		return md, err
	}
	return nil, errNoMetadata
}

// ParseMetadata parses an email-header style core metadata document. A
// description body after the headers is used when no Description header
// is present.
func ParseMetadata(r io.Reader) (*Metadata, error) {
	br := bufio.NewReader(r)
	hdr, err := textproto.NewReader(br).ReadMIMEHeader()
	if err != nil && !(errors.Is(err, io.EOF) && len(hdr) > 0) {
		return nil, fmt.Errorf("parsing core metadata: %w", err)
	}

	md := &Metadata{
		MetadataVersion:        hdr.Get("Metadata-Version"),
		Name:                   hdr.Get("Name"),
		Version:                hdr.Get("Version"),
		Summary:                hdr.Get("Summary"),
		Description:            hdr.Get("Description"),
		DescriptionContentType: hdr.Get("Description-Content-Type"),
		HomePage:               hdr.Get("Home-Page"),
		Author:                 hdr.Get("Author"),
		AuthorEmail:            hdr.Get("Author-Email"),
		License:                hdr.Get("License"),
		Keywords:               hdr.Get("Keywords"),
		RequiresPython:         hdr.Get("Requires-Python"),
		Classifiers:            hdr.Values("Classifier"),
		RequiresDist:           hdr.Values("Requires-Dist"),
		ProjectURLs:            hdr.Values("Project-Url"),
	}
	if md.Description == "" {
		body, err := io.ReadAll(br)
		if err != nil {
			return nil, err
		}
		md.Description = strings.TrimSpace(string(body))
	}
	return md, nil
}
