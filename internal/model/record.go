package model

import "time"

// JobRecord is the reconstructed lifecycle of one job run.
// Zero-valued fields have not been observed yet.
type JobRecord struct {
	RunID                string    `json:"id"`
	Name                 string    `json:"name"`
	ScheduledTime        time.Time `json:"scheduled_time"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	ReturnCode           string    `json:"return_code"`
	ScheduledMessageCode string    `json:"scheduled_message_code"`
	StartMessageCode     string    `json:"start_message_code"`
	EndMessageCode       string    `json:"end_message_code"`
	RemoveMessageCode    string    `json:"remove_message_code"`
}

// Complete reports whether both the return code and the removal were seen.
func (j JobRecord) Complete() bool {
	return j.ReturnCode != "" && !j.EndTime.IsZero()
}

// Duration returns EndTime-StartTime, or false if either is unknown.
func (j JobRecord) Duration() (time.Duration, bool) {
	if j.StartTime.IsZero() || j.EndTime.IsZero() {
		return 0, false
	}
	return j.EndTime.Sub(j.StartTime), true
}

// Apply folds a job event into the record. Only the fields belonging to
// the event's kind are written; the name is carried by every job event.
func (j *JobRecord) Apply(ev Event) {
	if j.RunID == "" {
		j.RunID = ev.RunID
	}
	if ev.JobName != "" {
		j.Name = ev.JobName
	}
	switch ev.Kind {
	case JobScheduled:
		j.ScheduledTime = ev.Timestamp
		j.ScheduledMessageCode = ev.MessageCode
	case JobStarted:
		j.StartTime = ev.Timestamp
		j.StartMessageCode = ev.MessageCode
	case JobEnded:
		j.ReturnCode = ev.ReturnCode
		j.EndMessageCode = ev.MessageCode
	case JobRemoved:
		j.EndTime = ev.Timestamp
		j.RemoveMessageCode = ev.MessageCode
	}
}

// MergeJob overlays the fields src carries onto dst. Absent fields in src
// never clear what dst already knows.
func MergeJob(dst, src JobRecord) JobRecord {
	if dst.RunID == "" {
		dst.RunID = src.RunID
	}
	setStr(&dst.Name, src.Name)
	setTime(&dst.ScheduledTime, src.ScheduledTime)
	setTime(&dst.StartTime, src.StartTime)
	setTime(&dst.EndTime, src.EndTime)
	setStr(&dst.ReturnCode, src.ReturnCode)
	setStr(&dst.ScheduledMessageCode, src.ScheduledMessageCode)
	setStr(&dst.StartMessageCode, src.StartMessageCode)
	setStr(&dst.EndMessageCode, src.EndMessageCode)
	setStr(&dst.RemoveMessageCode, src.RemoveMessageCode)
	return dst
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setTime(dst *time.Time, v time.Time) {
	if !v.IsZero() {
		*dst = v
	}
}

// ReportRecord is the reconstructed lifecycle of one report.
type ReportRecord struct {
	ReportID         string    `json:"id"`
	FileName         string    `json:"file_name"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	StartMessageCode string    `json:"start_message_code"`
	EndMessageCode   string    `json:"end_message_code"`
}

// NewReport builds a fresh record from a ReportStarted event.
func NewReport(ev Event) ReportRecord {
	return ReportRecord{
		ReportID:         ev.ReportID,
		FileName:         ev.FileName,
		StartTime:        ev.Timestamp,
		StartMessageCode: ev.MessageCode,
	}
}

// ReportEnd is a ReportEnded event that found no record to update yet.
type ReportEnd struct {
	ReportID    string    `json:"report_id"`
	Timestamp   time.Time `json:"timestamp"`
	MessageCode string    `json:"message_code"`
	Line        int       `json:"line"`
}

// End marks the report as finished.
func (r *ReportRecord) End(at time.Time, code string) {
	r.EndTime = at
	r.EndMessageCode = code
}
