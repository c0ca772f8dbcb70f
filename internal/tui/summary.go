package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// SummaryRow represents a key-value pair in the summary.
type SummaryRow struct {
	Key   string
	Value string
}

// Summary is the end-of-run report.
type Summary struct {
	Title    string
	Status   string // succeeded or failed
	Rows     []SummaryRow
	Warnings []string
}

// Renderer writes summaries either styled (terminal) or as plain
// key: value lines (CI logs, pipes).
type Renderer struct {
	Styled bool
	Width  int
	Styles *StyleSet
}

// NewRenderer inspects f to decide between styled and plain output.
func NewRenderer(f *os.File) *Renderer {
	r := &Renderer{Width: 80}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		r.Styled = true
		r.Styles = NewStyleSet(DetectTheme())
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			r.Width = w
		}
	}
	return r
}

// Render writes s to w.
func (r *Renderer) Render(w io.Writer, s Summary) error {
	if !r.Styled {
		return r.renderPlain(w, s)
	}
	st := r.Styles

	status := st.SuccessTxt.Render(s.Status)
	if s.Status != "succeeded" {
		status = st.ErrorTxt.Render(s.Status)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", st.Title.Render(s.Title), status)
	for _, row := range s.Rows {
		fmt.Fprintf(&b, "  %s  %s\n", st.SummaryKey.Render(row.Key), st.SummaryValue.Render(row.Value))
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(&b, "  %s\n", st.WarningTxt.Render("! "+warn))
	}

	boxWidth := r.Width - 8
	if boxWidth < 30 {
		boxWidth = 30
	}
	_, err := fmt.Fprintln(w, st.BorderedBox.Width(boxWidth).Render(strings.TrimRight(b.String(), "\n")))
	return err
}

func (r *Renderer) renderPlain(w io.Writer, s Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", s.Title, s.Status)
	for _, row := range s.Rows {
		fmt.Fprintf(&b, "  %s: %s\n", row.Key, row.Value)
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(&b, "  WARNING: %s\n", warn)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
