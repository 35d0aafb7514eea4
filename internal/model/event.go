package model

import "time"

// Kind classifies an extracted log line.
type Kind int

const (
	Unclassified Kind = iota
	JobScheduled
	JobStarted
	JobEnded
	JobRemoved
	ReportStarted
	ReportEnded
)

var kindNames = [...]string{
	Unclassified:  "unclassified",
	JobScheduled:  "job_scheduled",
	JobStarted:    "job_started",
	JobEnded:      "job_ended",
	JobRemoved:    "job_removed",
	ReportStarted: "report_started",
	ReportEnded:   "report_ended",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// IsJob reports whether the kind updates a job record.
func (k Kind) IsJob() bool {
	return k >= JobScheduled && k <= JobRemoved
}

// Event is a single scheduler log line reduced to its structured parts.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	MessageCode string    `json:"message_code"`
	Kind        Kind      `json:"kind"`
	Text        string    `json:"text"` // line text after the timestamp

	JobName    string `json:"job_name,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	ReturnCode string `json:"return_code,omitempty"`
	ReportID   string `json:"report_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
}

// EventLogEntry is one row of the chronological event log.
type EventLogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	MessageCode string    `json:"message_code"`
}

// Entry converts the event into its event log form.
func (e Event) Entry() EventLogEntry {
	return EventLogEntry{
		Timestamp:   e.Timestamp,
		Description: e.Text,
		MessageCode: e.MessageCode,
	}
}

