package secret

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFromBytes_ZeroesSource(t *testing.T) {
	src := []byte("pypi-secret-value")
	b, err := NewFromBytes(src)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer b.Close()

	for i, c := range src {
		if c != 0 {
			t.Fatalf("source byte %d not zeroed", i)
		}
	}
	if got := b.Reveal(); got != "pypi-secret-value" {
		t.Errorf("Reveal = %q", got)
	}
	if b.Len() != len("pypi-secret-value") {
		t.Errorf("Len = %d", b.Len())
	}
}

func TestBuffer_FormattingNeverLeaks(t *testing.T) {
	b, err := NewFromString("pypi-do-not-print")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	defer b.Close()

	for _, verb := range []string{"%s", "%v", "%+v", "%#v"} {
		out := fmt.Sprintf(verb, b)
		if strings.Contains(out, "do-not-print") {
			t.Errorf("%s leaked the secret: %q", verb, out)
		}
	}
}

func TestNewFromString_Empty(t *testing.T) {
	if _, err := NewFromString("   \n"); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestBuffer_CloseIdempotentAndPanicsAfter(t *testing.T) {
	b, err := NewFromString("pypi-token")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Reveal after Close did not panic")
		}
	}()
	b.Reveal()
}

func TestReadFromPath_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  pypi-file-token \n"), 0600); err != nil {
		t.Fatal(err)
	}
	b, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer b.Close()
	if got := b.Reveal(); got != "pypi-file-token" {
		t.Errorf("Reveal = %q", got)
	}
}

func TestReadFrom_Empty(t *testing.T) {
	if _, err := ReadFrom(strings.NewReader("")); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}
