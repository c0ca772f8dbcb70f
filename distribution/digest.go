package distribution

import (
	"crypto/md5" //nolint:gosec // the upload API still requires it
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Digests holds the hex digests the upload API verifies.
type Digests struct {
	MD5        string
	SHA256     string
	BLAKE2b256 string
}

// Digest computes every upload digest in one pass over the file.
func Digest(p string) (Digests, error) {
	f, err := os.Open(p)
	if err != nil {
		return Digests{}, err
	}
	defer func() { _ = f.Close() }()

	b2, err := blake2b.New256(nil)
	if err != nil {
		return Digests{}, err
	}
	m := md5.New() //nolint:gosec
	s := sha256.New()
	if _, err := io.Copy(io.MultiWriter(m, s, b2), f); err != nil {
		return Digests{}, fmt.Errorf("hashing %s: %w", p, err)
	}
	return Digests{
		MD5:        hex.EncodeToString(m.Sum(nil)),
		SHA256:     hex.EncodeToString(s.Sum(nil)),
		BLAKE2b256: hex.EncodeToString(b2.Sum(nil)),
	}, nil
}
