// Package secret holds credentials outside the Go heap for the lifetime
// of a run.
//
// On Linux a Buffer is backed by an anonymous mmap region that is locked
// into RAM (best effort) and excluded from core dumps. Close zeroes and
// unmaps it. String returns a redaction marker so a Buffer that ends up
// in a format string never prints its contents; use Reveal at the single
// API boundary that needs the value.
package secret

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// ErrEmpty is returned when a secret source holds no data.
var ErrEmpty = errors.New("secret is empty")

const redacted = "[REDACTED]"

// Buffer holds sensitive bytes. It must not be copied after creation.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	length int
	locked bool
	closed bool
}

// NewFromBytes copies source into protected memory and zeroes source.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, ErrEmpty
	}
	data, locked, err := allocate(len(source))
	if err != nil {
		return nil, fmt.Errorf("allocating secret buffer: %w", err)
	}
	copy(data, source)
	Zero(source)
	return &Buffer{data: data, length: len(source), locked: locked}, nil
}

// NewFromString trims whitespace around s and stores it. Go strings are
// immutable, so the caller's copy cannot be zeroed.
func NewFromString(s string) (*Buffer, error) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}
	return NewFromBytes(trimmed)
}

// Reveal returns a heap copy of the secret. Panics after Close.
func (b *Buffer) Reveal() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return string(b.data[:b.length])
}

// String implements fmt.Stringer without exposing the value.
func (b *Buffer) String() string { return redacted }

// GoString covers %#v.
func (b *Buffer) GoString() string { return redacted }

// Len returns the size of the secret.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Locked reports whether the backing memory is pinned against swap.
func (b *Buffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Close zeroes and releases the memory. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.data)
	err := release(b.data, b.locked)
	b.data = nil
	return err
}

// Zero overwrites data with zeroes.
func Zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
