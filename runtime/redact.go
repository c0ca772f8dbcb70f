package runtime

import (
	"fmt"
	"strings"
	"sync"
)

// RedactedMarker replaces tracked secret values in log output.
const RedactedMarker = "***"

// minTrackedLen keeps very short values (which would mask ordinary words)
// out of the redaction set.
const minTrackedLen = 4

// Redactor tracks sensitive values and masks them in log output. The zero
// value is ready to use; a nil *Redactor passes input through unchanged.
type Redactor struct {
	mu     sync.RWMutex
	values []string
}

// NewRedactor creates an empty Redactor.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// Track registers a sensitive value to be masked from now on.
func (r *Redactor) Track(value string) {
	if r == nil || len(value) < minTrackedLen {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.values {
		if v == value {
			return
		}
	}
	r.values = append(r.values, value)
}

// Redact masks every tracked value in s.
func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.values {
		s = strings.ReplaceAll(s, v, RedactedMarker)
	}
	return s
}

// RedactValue masks tracked values in strings, errors, and Stringers.
// Other values are returned untouched.
func (r *Redactor) RedactValue(v any) any {
	if r == nil {
		return v
	}
	switch x := v.(type) {
	case string:
		return r.Redact(x)
	case error:
		return r.Redact(x.Error())
	case fmt.Stringer:
		return r.Redact(x.String())
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = r.Redact(s)
		}
		return out
	default:
		return v
	}
}
