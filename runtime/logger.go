// Package runtime holds the process-level plumbing shared by every stage:
// structured logging, secret redaction, and env file parsing.
package runtime

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Logger defines the structured logging interface used across distpub.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// JSONLogger writes structured JSON log entries to an io.Writer. Every
// message and string field passes through the redactor before it is
// written.
type JSONLogger struct {
	mu       sync.Mutex
	w        io.Writer
	verbose  bool
	redactor *Redactor
}

// NewJSONLogger creates a JSONLogger writing to w. Debug entries are only
// emitted when verbose is true. A nil redactor disables masking.
func NewJSONLogger(w io.Writer, verbose bool, redactor *Redactor) *JSONLogger {
	return &JSONLogger{w: w, verbose: verbose, redactor: redactor}
}

func (l *JSONLogger) Info(msg string, fields map[string]any)  { l.log("info", msg, fields) }
func (l *JSONLogger) Warn(msg string, fields map[string]any)  { l.log("warn", msg, fields) }
func (l *JSONLogger) Error(msg string, fields map[string]any) { l.log("error", msg, fields) }

func (l *JSONLogger) Debug(msg string, fields map[string]any) {
	if !l.verbose {
		return
	}
	l.log("debug", msg, fields)
}

func (l *JSONLogger) log(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	entry["time"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = level
	entry["msg"] = l.redactor.Redact(msg)
	for k, v := range fields {
		entry[k] = l.redactor.RedactValue(v)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	data, _ := json.Marshal(entry)
	data = append(data, '\n')
	l.w.Write(data) //nolint:errcheck
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
func (NopLogger) Debug(string, map[string]any) {}
