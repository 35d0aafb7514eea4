package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

var (
	// ErrMalformedTimestamp is returned when a line carries a timestamp
	// shaped token that is not a valid date and time.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrInconsistentClassification is returned when more than one
	// lifecycle rule matches the same line.
	ErrInconsistentClassification = errors.New("inconsistent classification")
)

// TimestampLayout is the scheduler's timestamp format: YYYYMMDD/HHMMSS.mmm.
const TimestampLayout = "20060102/150405.000"

var (
	timestampRe   = regexp.MustCompile(`\d{8}/\d{6}\.\d{3}`)
	messageCodeRe = regexp.MustCompile(`U\d{8}`)
)

// Rule maps a lifecycle pattern onto an event kind.
// Bind copies the pattern's submatches into the event payload.
type Rule struct {
	Kind    model.Kind
	Pattern *regexp.Regexp
	Bind    func(ev *model.Event, m []string)
}

func bindJob(ev *model.Event, m []string) {
	ev.JobName, ev.RunID = m[1], m[2]
}

// DefaultRules is the classification table for the scheduler dialect.
// Quoted fields never contain quotes, so the rules cannot overlap.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:    model.JobScheduled,
			Pattern: regexp.MustCompile(`Job '([^']+)' with RunID '([^']+)' is to be started\.`),
			Bind:    bindJob,
		},
		{
			Kind:    model.JobStarted,
			Pattern: regexp.MustCompile(`Job '([^']+)' started with RunID '([^']+)'\.`),
			Bind:    bindJob,
		},
		{
			Kind:    model.JobEnded,
			Pattern: regexp.MustCompile(`Job '([^']+)' with RunID '([^']+)' ended with return code '([^']+)'\.`),
			Bind: func(ev *model.Event, m []string) {
				bindJob(ev, m)
				ev.ReturnCode = m[3]
			},
		},
		{
			Kind:    model.JobRemoved,
			Pattern: regexp.MustCompile(`Job '([^']+)' with RunID '([^']+)' has been removed from the job table\.`),
			Bind:    bindJob,
		},
		{
			Kind:    model.ReportStarted,
			Pattern: regexp.MustCompile(`Report '([^']+)' for file '([^']+)' has been started\.`),
			Bind: func(ev *model.Event, m []string) {
				ev.ReportID, ev.FileName = m[1], m[2]
			},
		},
		{
			Kind:    model.ReportEnded,
			Pattern: regexp.MustCompile(`Report '([^']+)' ended normally\.`),
			Bind: func(ev *model.Event, m []string) {
				ev.ReportID = m[1]
			},
		},
	}
}

// Extractor turns a single scheduler log line into an Event. It holds no
// state between lines and is safe for concurrent use.
type Extractor struct {
	rules []Rule
}

// NewExtractor returns an Extractor for the given rules, or for
// DefaultRules when none are supplied.
func NewExtractor(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// Extract parses one line. It returns nil, nil for lines without both a
// timestamp and a message code.
func (x *Extractor) Extract(line string) (*model.Event, error) {
	loc := timestampRe.FindStringIndex(line)
	if loc == nil {
		return nil, nil
	}
	code := messageCodeRe.FindString(line)
	if code == "" {
		return nil, nil
	}

	raw := line[loc[0]:loc[1]]
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return nil, err
	}

	ev := &model.Event{
		Timestamp:   ts,
		MessageCode: code,
		Kind:        model.Unclassified,
		Text:        strings.TrimSpace(line[loc[1]:]),
	}

	var matched *Rule
	var sub []string
	for i := range x.rules {
		r := &x.rules[i]
		m := r.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if matched != nil {
			return nil, fmt.Errorf("%w: line matches both %s and %s", ErrInconsistentClassification, matched.Kind, r.Kind)
		}
		matched, sub = r, m
	}
	if matched != nil {
		ev.Kind = matched.Kind
		if matched.Bind != nil {
			matched.Bind(ev, sub)
		}
	}
	return ev, nil
}

// ParseTimestamp parses a YYYYMMDD/HHMMSS.mmm token as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}
	return t, nil
}
