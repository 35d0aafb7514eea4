package parser

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

func TestExtractJobScheduled(t *testing.T) {
	x := NewExtractor()

	ev, err := x.Extract("20240115/093000.000 U00000001 Job 'BATCH_A' with RunID '42' is to be started.")
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil {
		t.Fatal("expected event, got nil")
	}
	if ev.Kind != model.JobScheduled {
		t.Errorf("expected job_scheduled, got %s", ev.Kind)
	}
	if ev.JobName != "BATCH_A" || ev.RunID != "42" {
		t.Errorf("unexpected payload: name=%q run=%q", ev.JobName, ev.RunID)
	}
	if ev.MessageCode != "U00000001" {
		t.Errorf("expected message code U00000001, got %q", ev.MessageCode)
	}
	want := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, ev.Timestamp)
	}
}

func TestExtractMilliseconds(t *testing.T) {
	x := NewExtractor()

	ev, err := x.Extract("20240115/093000.250 U00000001 something")
	if err != nil {
		t.Fatal(err)
	}
	if got := ev.Timestamp.Nanosecond(); got != 250*int(time.Millisecond) {
		t.Errorf("expected 250ms fraction, got %dns", got)
	}
}

func TestExtractKinds(t *testing.T) {
	x := NewExtractor()

	cases := []struct {
		line string
		kind model.Kind
		chk  func(t *testing.T, ev *model.Event)
	}{
		{
			line: "20240115/093500.000 U00000002 Job 'BATCH_A' started with RunID '42'.",
			kind: model.JobStarted,
			chk: func(t *testing.T, ev *model.Event) {
				if ev.JobName != "BATCH_A" || ev.RunID != "42" {
					t.Errorf("bad job payload: %+v", ev)
				}
			},
		},
		{
			line: "20240115/094000.000 U00000003 Job 'BATCH_A' with RunID '42' ended with return code '8'.",
			kind: model.JobEnded,
			chk: func(t *testing.T, ev *model.Event) {
				if ev.ReturnCode != "8" {
					t.Errorf("expected return code 8, got %q", ev.ReturnCode)
				}
			},
		},
		{
			line: "20240115/094001.000 U00000004 Job 'BATCH_A' with RunID '42' has been removed from the job table.",
			kind: model.JobRemoved,
		},
		{
			line: "20240115/094100.000 U00000005 Report '99' for file 'OUT.TXT' has been started.",
			kind: model.ReportStarted,
			chk: func(t *testing.T, ev *model.Event) {
				if ev.ReportID != "99" || ev.FileName != "OUT.TXT" {
					t.Errorf("bad report payload: %+v", ev)
				}
			},
		},
		{
			line: "20240115/094200.000 U00000006 Report '99' ended normally.",
			kind: model.ReportEnded,
			chk: func(t *testing.T, ev *model.Event) {
				if ev.ReportID != "99" {
					t.Errorf("expected report 99, got %q", ev.ReportID)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			ev, err := x.Extract(tc.line)
			if err != nil {
				t.Fatal(err)
			}
			if ev == nil || ev.Kind != tc.kind {
				t.Fatalf("expected %s, got %+v", tc.kind, ev)
			}
			if tc.chk != nil {
				tc.chk(t, ev)
			}
		})
	}
}

func TestExtractUnclassified(t *testing.T) {
	x := NewExtractor()

	ev, err := x.Extract("20240115/093000.000 U02000071 Server started, error level 3")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != model.Unclassified {
		t.Errorf("expected unclassified, got %s", ev.Kind)
	}
	if ev.Text != "U02000071 Server started, error level 3" {
		t.Errorf("expected remaining line text, got %q", ev.Text)
	}
}

func TestExtractIgnoresLinesWithoutMarkers(t *testing.T) {
	x := NewExtractor()

	for _, line := range []string{
		"",
		"==== banner ====",
		"20240115/093000.000 no message code here",
		"U00000001 no timestamp here",
	} {
		ev, err := x.Extract(line)
		if err != nil || ev != nil {
			t.Errorf("%q: expected nil, nil; got %+v, %v", line, ev, err)
		}
	}
}

func TestExtractMalformedTimestamp(t *testing.T) {
	x := NewExtractor()

	_, err := x.Extract("20241315/093000.000 U00000001 Job 'A' started with RunID '1'.")
	if !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
}

func TestExtractInconsistentClassification(t *testing.T) {
	rules := append(DefaultRules(), Rule{
		Kind:    model.JobStarted,
		Pattern: regexp.MustCompile(`started`),
	})
	x := NewExtractor(rules...)

	_, err := x.Extract("20240115/093500.000 U00000002 Job 'A' started with RunID '1'.")
	if !errors.Is(err, ErrInconsistentClassification) {
		t.Fatalf("expected ErrInconsistentClassification, got %v", err)
	}
}

func TestDefaultRulesAreExclusive(t *testing.T) {
	lines := []string{
		"Job 'A' with RunID '1' is to be started.",
		"Job 'A' started with RunID '1'.",
		"Job 'A' with RunID '1' ended with return code '0'.",
		"Job 'A' with RunID '1' has been removed from the job table.",
		"Report '7' for file 'f' has been started.",
		"Report '7' ended normally.",
	}
	rules := DefaultRules()
	for _, l := range lines {
		n := 0
		for _, r := range rules {
			if r.Pattern.MatchString(l) {
				n++
			}
		}
		if n != 1 {
			t.Errorf("%q matched %d rules, want 1", l, n)
		}
	}
}
