package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

// TimeLayout renders export timestamps; sub-second precision is dropped.
const TimeLayout = "2006-01-02 15:04:05"

// Mode selects how a sink opens its files.
type Mode int

const (
	ModeOverwrite Mode = iota
	ModeAppend
)

var (
	JobHeader         = []string{"id", "name", "scheduled_time", "start_time", "end_time", "return_code", "scheduled_message_code", "start_message_code", "end_message_code", "remove_message_code"}
	ReportHeader      = []string{"id", "file_name", "start_time", "end_time", "start_message_code", "end_message_code"}
	EventHeader       = []string{"Timestamp", "Event", "Message Code"}
	ConcurrencyHeader = []string{"timestamp", "concurrent_jobs", "active_jobs"}
)

// Sink receives the four export row shapes.
type Sink interface {
	WriteJobs(jobs []model.JobRecord) error
	WriteReports(reports []model.ReportRecord) error
	WriteEvents(events []model.EventLogEntry) error
	WriteConcurrency(samples []model.ConcurrencySample) error
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

func JobRow(j model.JobRecord) []string {
	return []string{
		j.RunID, j.Name,
		formatTime(j.ScheduledTime), formatTime(j.StartTime), formatTime(j.EndTime),
		j.ReturnCode,
		j.ScheduledMessageCode, j.StartMessageCode, j.EndMessageCode, j.RemoveMessageCode,
	}
}

func ReportRow(r model.ReportRecord) []string {
	return []string{
		r.ReportID, r.FileName,
		formatTime(r.StartTime), formatTime(r.EndTime),
		r.StartMessageCode, r.EndMessageCode,
	}
}

func EventRow(e model.EventLogEntry) []string {
	return []string{formatTime(e.Timestamp), e.Description, e.MessageCode}
}

func ConcurrencyRow(s model.ConcurrencySample) []string {
	return []string{formatTime(s.Timestamp), strconv.Itoa(s.Count), s.ActiveLabel()}
}

// WriteCSV writes rows with an optional header and flushes.
func WriteCSV(w io.Writer, header []string, rows [][]string, withHeader bool) error {
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// DirSink writes jobs.csv, reports.csv, events.csv and concurrency.csv
// into Dir, each file name prefixed with Prefix.
type DirSink struct {
	Dir    string
	Prefix string
	Mode   Mode
}

// NewDirSink creates dir if needed.
func NewDirSink(dir, prefix string, mode Mode) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{Dir: dir, Prefix: prefix, Mode: mode}, nil
}

// Path returns the full path of a named export file.
func (s *DirSink) Path(name string) string {
	return filepath.Join(s.Dir, s.Prefix+name+".csv")
}

func (s *DirSink) WriteJobs(jobs []model.JobRecord) error {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, JobRow(j))
	}
	return s.write("jobs", JobHeader, rows)
}

func (s *DirSink) WriteReports(reports []model.ReportRecord) error {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, ReportRow(r))
	}
	return s.write("reports", ReportHeader, rows)
}

func (s *DirSink) WriteEvents(events []model.EventLogEntry) error {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, EventRow(e))
	}
	return s.write("events", EventHeader, rows)
}

func (s *DirSink) WriteConcurrency(samples []model.ConcurrencySample) error {
	rows := make([][]string, 0, len(samples))
	for _, smp := range samples {
		rows = append(rows, ConcurrencyRow(smp))
	}
	return s.write("concurrency", ConcurrencyHeader, rows)
}

// write opens the file per mode. In append mode the header is only written
// when the file is new or empty.
func (s *DirSink) write(name string, header []string, rows [][]string) error {
	path := s.Path(name)
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	withHeader := true
	if s.Mode == ModeAppend {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
			withHeader = false
		}
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, header, rows, withHeader); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
