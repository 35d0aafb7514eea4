package model

import (
	"testing"
	"time"
)

func TestApplyOnlyWritesOwnFields(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	var j JobRecord

	j.Apply(Event{Kind: JobScheduled, RunID: "42", JobName: "BATCH_A", Timestamp: t0, MessageCode: "U00000001"})
	j.Apply(Event{Kind: JobStarted, RunID: "42", JobName: "BATCH_A", Timestamp: t0.Add(5 * time.Minute), MessageCode: "U00000002"})
	j.Apply(Event{Kind: JobEnded, RunID: "42", JobName: "BATCH_A", Timestamp: t0.Add(9 * time.Minute), ReturnCode: "4", MessageCode: "U00000003"})

	if !j.ScheduledTime.Equal(t0) || j.ScheduledMessageCode != "U00000001" {
		t.Errorf("schedule fields lost: %+v", j)
	}
	if j.ReturnCode != "4" || j.EndMessageCode != "U00000003" {
		t.Errorf("end fields missing: %+v", j)
	}
	if !j.EndTime.IsZero() {
		t.Errorf("JobEnded must not set the end time, got %v", j.EndTime)
	}
	if j.Complete() {
		t.Error("job is not complete until removed")
	}
	if _, ok := j.Duration(); ok {
		t.Error("duration needs an end time")
	}
}

func TestMergeJobKeepsKnownFields(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	dst := JobRecord{RunID: "1", Name: "A", ScheduledTime: t0, ScheduledMessageCode: "U00000001"}
	src := JobRecord{RunID: "1", Name: "A", EndTime: t0.Add(time.Hour), RemoveMessageCode: "U00000004"}

	got := MergeJob(dst, src)
	if !got.ScheduledTime.Equal(t0) || got.ScheduledMessageCode != "U00000001" {
		t.Errorf("merge cleared known fields: %+v", got)
	}
	if !got.EndTime.Equal(t0.Add(time.Hour)) {
		t.Errorf("merge dropped new field: %+v", got)
	}

	if again := MergeJob(got, src); again != got {
		t.Errorf("merge is not idempotent: %+v vs %+v", again, got)
	}
}

func TestActiveLabel(t *testing.T) {
	s := ConcurrencySample{Active: []string{"A", "B"}}
	if got := s.ActiveLabel(); got != "A, B" {
		t.Errorf("unexpected label %q", got)
	}
}
