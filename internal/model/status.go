package model

import (
	"fmt"
	"strings"
	"time"
)

// ObservationKind names a non-fatal data-quality finding.
type ObservationKind string

const (
	MalformedTimestamp         ObservationKind = "malformed_timestamp"
	InconsistentClassification ObservationKind = "inconsistent_classification"
	OrphanReportEnd            ObservationKind = "orphan_report_end"
	UnmatchedJobEnd            ObservationKind = "unmatched_job_end"
)

// Observation records an anomaly that was downgraded instead of aborting.
type Observation struct {
	Source string          `json:"source"`
	Line   int             `json:"line"` // 0-based, -1 when not tied to a line
	Kind   ObservationKind `json:"kind"`
	Detail string          `json:"detail"`
}

func (o Observation) String() string {
	if o.Line < 0 {
		return fmt.Sprintf("%s: %s: %s", o.Source, o.Kind, o.Detail)
	}
	return fmt.Sprintf("%s:%d: %s: %s", o.Source, o.Line, o.Kind, o.Detail)
}

// SourceStatus is the outcome of processing one source.
type SourceStatus struct {
	Name         string        `json:"name"`
	OK           bool          `json:"ok"`
	Error        string        `json:"error,omitempty"`
	Encoding     string        `json:"encoding,omitempty"`
	Bytes        int64         `json:"bytes"`
	Lines        int           `json:"lines"`
	Events       int           `json:"events"`
	Jobs         int           `json:"jobs"`
	Reports      int           `json:"reports"`
	Observations int           `json:"observations"`
	First        time.Time     `json:"first,omitempty"` // earliest timestamp seen
	Last         time.Time     `json:"last,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Update is published after each merge in live processing.
type Update struct {
	Source      SourceStatus `json:"source"`
	TotalJobs   int          `json:"total_jobs"`
	TotalEvents int          `json:"total_events"`
	Reports     int          `json:"total_reports"`
	Active      int          `json:"active_jobs"`
}

// ConcurrencySample is the number of active jobs right after one
// start or end.
type ConcurrencySample struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"concurrent_jobs"`
	Active    []string  `json:"active_jobs"` // at most three names
	More      int       `json:"more"`
}

// ActiveLabel renders the display sample, e.g. "A, B, C (+2 more)".
func (s ConcurrencySample) ActiveLabel() string {
	label := strings.Join(s.Active, ", ")
	if s.More > 0 {
		label += fmt.Sprintf(" (+%d more)", s.More)
	}
	return label
}
