package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

// Summary is the end-of-run overview printed to the terminal.
type Summary struct {
	Sources      int           `json:"sources"`
	Failed       int           `json:"failed"`
	Jobs         int           `json:"jobs"`
	Complete     int           `json:"complete_jobs"`
	Reports      int           `json:"reports"`
	Events       int           `json:"events"`
	Observations int           `json:"observations"`
	Peak         int           `json:"peak_concurrency"`
	PeakAt       time.Time     `json:"peak_at"`
	Took         time.Duration `json:"took"`
	Files        []string      `json:"files,omitempty"`
}

// Renderer writes per-source progress and the final summary.
type Renderer interface {
	RenderSource(st model.SourceStatus) error
	RenderSummary(s Summary) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)  // green
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red bold
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))            // yellow
	styleSource = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
	styleLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))            // gray
	styleTitle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// TextRenderer prints human readable, colorized lines.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) RenderSource(st model.SourceStatus) error {
	src := styleSource.Render(st.Name)
	if !st.OK {
		_, err := fmt.Fprintf(r.w, "%s %s %s\n", styleFailed.Render("FAIL"), src, st.Error)
		return err
	}

	line := fmt.Sprintf("%s %s %s jobs, %s reports, %s events (%s, %s, %s)",
		styleOK.Render(" OK "), src,
		humanize.Comma(int64(st.Jobs)), humanize.Comma(int64(st.Reports)), humanize.Comma(int64(st.Events)),
		humanize.Bytes(uint64(st.Bytes)), st.Encoding, st.Duration.Round(time.Millisecond))
	if !st.First.IsZero() {
		line += styleLabel.Render(fmt.Sprintf(" period %s → %s", st.First.Format(TimeLayout), st.Last.Format(TimeLayout)))
	}
	if st.Observations > 0 {
		line += " " + styleWarn.Render(fmt.Sprintf("%d observations", st.Observations))
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}

func (r *TextRenderer) RenderSummary(s Summary) error {
	row := func(label, value string) string {
		return fmt.Sprintf("  %s %s\n", styleLabel.Render(fmt.Sprintf("%-14s", label)), value)
	}

	out := "\n" + styleTitle.Render("Summary") + "\n"
	sources := humanize.Comma(int64(s.Sources))
	if s.Failed > 0 {
		sources += " " + styleFailed.Render(fmt.Sprintf("(%d failed)", s.Failed))
	}
	out += row("sources", sources)
	out += row("jobs", fmt.Sprintf("%s (%s complete)", humanize.Comma(int64(s.Jobs)), humanize.Comma(int64(s.Complete))))
	out += row("reports", humanize.Comma(int64(s.Reports)))
	out += row("events", humanize.Comma(int64(s.Events)))
	if s.Peak > 0 {
		out += row("peak", fmt.Sprintf("%d concurrent jobs at %s", s.Peak, s.PeakAt.Format(TimeLayout)))
	}
	if s.Observations > 0 {
		out += row("observations", styleWarn.Render(humanize.Comma(int64(s.Observations))))
	}
	out += row("took", s.Took.Round(time.Millisecond).String())
	for _, f := range s.Files {
		out += row("wrote", f)
	}

	_, err := fmt.Fprint(r.w, out)
	return err
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints one JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

// NewRenderer picks a renderer by format name; anything but "json" is text.
func NewRenderer(format string, w io.Writer) Renderer {
	if strings.EqualFold(format, "json") {
		return NewJSONRenderer(w)
	}
	return NewTextRenderer(w)
}

func (r *JSONRenderer) RenderSource(st model.SourceStatus) error {
	return r.enc.Encode(struct {
		Type string `json:"type"`
		model.SourceStatus
	}{"source", st})
}

func (r *JSONRenderer) RenderSummary(s Summary) error {
	return r.enc.Encode(struct {
		Type string `json:"type"`
		Summary
	}{"summary", s})
}
