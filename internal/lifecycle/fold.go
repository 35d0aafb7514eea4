package lifecycle

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/parser"
)

// Result is everything one source contributes.
type Result struct {
	Source  string
	Jobs    map[string]model.JobRecord
	Reports map[string]model.ReportRecord

	// PendingEnds are ReportEnded events whose report had not been started
	// earlier in the same source. A cross-source merge may still apply them.
	PendingEnds []model.ReportEnd

	Events       []model.EventLogEntry
	Observations []model.Observation

	Lines       int // lines after preamble stripping
	First, Last time.Time
}

// FoldOptions tunes a single fold.
type FoldOptions struct {
	// Continuation marks text appended to an already processed source;
	// it has no preamble.
	Continuation bool
}

// Folder applies an Extractor line by line. It is stateless between calls.
type Folder struct {
	extractor *parser.Extractor
	anchors   []string
}

// NewFolder returns a Folder. Anchors are banner markers: the first line
// containing any of them starts the log. No anchors disables stripping.
func NewFolder(x *parser.Extractor, anchors []string) *Folder {
	if x == nil {
		x = parser.NewExtractor()
	}
	var clean []string
	for _, a := range anchors {
		if a != "" {
			clean = append(clean, a)
		}
	}
	return &Folder{extractor: x, anchors: clean}
}

// StripPreamble drops every line before the first one containing an anchor.
// The anchor line itself is kept. Without a match the lines are returned
// unchanged.
func StripPreamble(lines []string, anchors []string) []string {
	if len(anchors) == 0 {
		return lines
	}
	for i, l := range lines {
		for _, a := range anchors {
			if strings.Contains(l, a) {
				return lines[i:]
			}
		}
	}
	return lines
}

// SplitLines splits on '\n' and trims a trailing '\r' from each line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Fold processes text from the named source. The same input always
// yields the same Result.
func (f *Folder) Fold(name, text string, opts FoldOptions) *Result {
	lines := SplitLines(text)
	skipped := 0
	if !opts.Continuation {
		kept := StripPreamble(lines, f.anchors)
		skipped = len(lines) - len(kept)
		lines = kept
	}

	res := &Result{
		Source:  name,
		Jobs:    make(map[string]model.JobRecord),
		Reports: make(map[string]model.ReportRecord),
		Lines:   len(lines),
	}

	for i, line := range lines {
		offset := i + skipped
		ev, err := f.extractor.Extract(line)
		if err != nil {
			res.observe(offset, err)
			continue
		}
		if ev == nil {
			continue
		}
		res.apply(*ev, offset)
	}

	slices.SortStableFunc(res.Events, func(a, b model.EventLogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return res
}

func (r *Result) observe(line int, err error) {
	kind := model.MalformedTimestamp
	if errors.Is(err, parser.ErrInconsistentClassification) {
		kind = model.InconsistentClassification
	}
	r.Observations = append(r.Observations, model.Observation{
		Source: r.Source,
		Line:   line,
		Kind:   kind,
		Detail: err.Error(),
	})
}

func (r *Result) apply(ev model.Event, line int) {
	r.Events = append(r.Events, ev.Entry())
	if r.First.IsZero() || ev.Timestamp.Before(r.First) {
		r.First = ev.Timestamp
	}
	if ev.Timestamp.After(r.Last) {
		r.Last = ev.Timestamp
	}

	switch {
	case ev.Kind.IsJob():
		job := r.Jobs[ev.RunID]
		job.Apply(ev)
		r.Jobs[ev.RunID] = job

	case ev.Kind == model.ReportStarted:
		r.Reports[ev.ReportID] = model.NewReport(ev)

	case ev.Kind == model.ReportEnded:
		rep, ok := r.Reports[ev.ReportID]
		if !ok {
			r.PendingEnds = append(r.PendingEnds, model.ReportEnd{
				ReportID:    ev.ReportID,
				Timestamp:   ev.Timestamp,
				MessageCode: ev.MessageCode,
				Line:        line,
			})
			return
		}
		rep.End(ev.Timestamp, ev.MessageCode)
		r.Reports[ev.ReportID] = rep
	}
}
