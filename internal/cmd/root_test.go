package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

const (
	dayOne = `20240115/090000.000 U00000001 Job 'X' with RunID '1' is to be started.
20240115/090100.000 U00000002 Job 'X' started with RunID '1'.
20240115/090200.000 U00000005 Report '7' for file 'R7.TXT' has been started.
`
	dayTwo = `20240115/091000.000 U00000003 Job 'X' with RunID '1' ended with return code '0'.
20240115/091001.000 U00000004 Job 'X' with RunID '1' has been removed from the job table.
20240115/091100.000 U00000006 Report '7' ended normally.
20240115/091200.000 U00000002 Job 'Y' started with RunID '2'.
`
)

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	if err := os.Mkdir(logs, 0o755); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(logs, "day1.LOG.txt"), dayOne)
	write(t, filepath.Join(logs, "day2.LOG.txt"), dayTwo)
	write(t, filepath.Join(logs, "notes.txt"), "not a log\n")
	return dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func decodeJSONLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var objs []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", sc.Text(), err)
		}
		objs = append(objs, m)
	}
	return objs
}

func TestRootCommandVersion(t *testing.T) {
	output, err := executeCommand(NewRootCmd("test"), "--version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(output, "aelogs version test") {
		t.Fatalf("expected version output, got %q", output)
	}

	output, err = executeCommand(NewRootCmd("1.2.3"), "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(output, "aelogs 1.2.3 (go") {
		t.Errorf("unexpected version output %q", output)
	}
}

func TestProcessFolder(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "out")

	output, err := executeCommand(NewRootCmd("test"),
		"process", filepath.Join(dir, "logs"), "--dir", out, "--output", "json", "--level", "off")
	if err != nil {
		t.Fatal(err)
	}

	objs := decodeJSONLines(t, output)
	if len(objs) != 3 {
		t.Fatalf("expected 2 source lines and a summary, got %d: %s", len(objs), output)
	}
	if !strings.HasSuffix(objs[0]["name"].(string), "day1.LOG.txt") {
		t.Errorf("expected day1 first, got %v", objs[0]["name"])
	}
	summary := objs[2]
	if summary["type"] != "summary" || summary["jobs"] != float64(2) || summary["complete_jobs"] != float64(1) {
		t.Errorf("unexpected summary %v", summary)
	}
	if summary["peak_concurrency"] != float64(1) {
		t.Errorf("expected peak 1, got %v", summary["peak_concurrency"])
	}

	jobs := readLines(t, filepath.Join(out, "combined_jobs.csv"))
	if len(jobs) != 3 || !strings.HasPrefix(jobs[0], "id,name,") {
		t.Fatalf("unexpected jobs export %q", jobs)
	}
	if jobs[1] != "1,X,2024-01-15 09:00:00,2024-01-15 09:01:00,2024-01-15 09:10:01,0,U00000001,U00000002,U00000003,U00000004" {
		t.Errorf("unexpected job row %q", jobs[1])
	}
	reports := readLines(t, filepath.Join(out, "combined_reports.csv"))
	if len(reports) != 2 || reports[1] != "7,R7.TXT,2024-01-15 09:02:00,2024-01-15 09:11:00,U00000005,U00000006" {
		t.Errorf("unexpected reports export %q", reports)
	}
	if events := readLines(t, filepath.Join(out, "combined_events.csv")); len(events) != 8 {
		t.Errorf("expected header and 7 events, got %d", len(events))
	}
	if _, err := os.Stat(filepath.Join(out, "combined_concurrency.csv")); err != nil {
		t.Error(err)
	}
}

func TestProcessFailOnError(t *testing.T) {
	dir := isolate(t)
	missing := filepath.Join(dir, "logs", "gone.LOG.txt")
	args := []string{"process", filepath.Join(dir, "logs", "day1.LOG.txt"), missing,
		"--dir", filepath.Join(dir, "out"), "--output", "json", "--level", "off"}

	output, err := executeCommand(NewRootCmd("test"), args...)
	if err != nil {
		t.Fatalf("failed sources must not fail the run by default: %v", err)
	}
	objs := decodeJSONLines(t, output)
	if objs[1]["ok"] != false || objs[2]["failed"] != float64(1) {
		t.Errorf("expected the missing file reported as failed, got %v", objs)
	}

	if _, err := executeCommand(NewRootCmd("test"), append(args, "--fail-on-error")...); err == nil {
		t.Error("expected error with --fail-on-error")
	}
}

func TestProcessConfigFile(t *testing.T) {
	dir := isolate(t)
	cfg := filepath.Join(dir, "aelogs.yaml")
	write(t, cfg, "output:\n  prefix: merged_\n  format: json\nlog:\n  level: error\n")

	if _, err := executeCommand(NewRootCmd("test"),
		"process", filepath.Join(dir, "logs"), "--config", cfg, "--dir", filepath.Join(dir, "out")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "merged_jobs.csv")); err != nil {
		t.Errorf("expected prefix from config file: %v", err)
	}

	write(t, cfg, "workers: 0\n")
	if _, err := executeCommand(NewRootCmd("test"),
		"process", filepath.Join(dir, "logs"), "--config", cfg, "--level", "off"); err == nil {
		t.Error("expected validation error for workers: 0")
	}
}

func TestResolvePaths(t *testing.T) {
	dir := isolate(t)
	logs := filepath.Join(dir, "logs")

	got, err := resolvePaths([]string{
		logs,
		filepath.Join(logs, "day1.LOG.txt"),
		filepath.Join(logs, "missing.LOG.txt"),
		filepath.Join(dir, "**", "nothing-*.txt"),
	}, "*.LOG.txt")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(logs, "day1.LOG.txt"),
		filepath.Join(logs, "day2.LOG.txt"),
		filepath.Join(logs, "missing.LOG.txt"),
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// watchUntil runs the watch command until the live events export holds
// lines lines, then stops it and returns what it printed.
func watchUntil(t *testing.T, dir string, lines int) string {
	t.Helper()
	out := filepath.Join(dir, "out")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := new(bytes.Buffer)
	cmd := NewRootCmd("test")
	cmd.SetArgs([]string{"watch", filepath.Join(dir, "logs"),
		"--dir", out, "--checkpoint", filepath.Join(dir, "state.json"), "--output", "json", "--level", "off"})
	cmd.SetOut(buf)
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	liveEvents := filepath.Join(out, "live_combined_events.csv")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if b, err := os.ReadFile(liveEvents); err == nil && strings.Count(string(b), "\n") == lines {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for live export")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	return buf.String()
}

func TestWatchAppendsAndExportsOnShutdown(t *testing.T) {
	dir := isolate(t)
	watchUntil(t, dir, 8)

	jobs := readLines(t, filepath.Join(dir, "out", "combined_jobs.csv"))
	if len(jobs) != 3 {
		t.Errorf("expected 2 merged jobs on shutdown, got %q", jobs)
	}
	if _, err := os.Stat(filepath.Join(dir, "state.json")); err != nil {
		t.Errorf("expected checkpoint to be saved: %v", err)
	}
}

func TestWatchRestartKeepsEarlierSessions(t *testing.T) {
	dir := isolate(t)
	dayTwoPath := filepath.Join(dir, "logs", "day2.LOG.txt")
	reportEnd := "20240115/091100.000 U00000006 Report '7' ended normally.\n"
	write(t, dayTwoPath, strings.Replace(dayTwo, reportEnd, "", 1))

	watchUntil(t, dir, 7)

	f, err := os.OpenFile(dayTwoPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(reportEnd); err != nil {
		t.Fatal(err)
	}
	f.Close()

	output := watchUntil(t, dir, 8)

	jobs := readLines(t, filepath.Join(dir, "out", "combined_jobs.csv"))
	if len(jobs) != 3 {
		t.Errorf("expected jobs from both sessions, got %q", jobs)
	}
	reports := readLines(t, filepath.Join(dir, "out", "combined_reports.csv"))
	if len(reports) != 2 || !strings.Contains(reports[1], "R7.TXT") {
		t.Errorf("expected report 7 with its start from the first session, got %q", reports)
	}
	events := readLines(t, filepath.Join(dir, "out", "combined_events.csv"))
	if len(events) != 8 {
		t.Errorf("expected all 7 events in the combined export, got %d", len(events)-1)
	}

	objs := decodeJSONLines(t, output)
	summary := objs[len(objs)-1]
	if summary["type"] != "summary" || summary["observations"] != float64(0) {
		t.Errorf("expected no observations after restart, got %v", summary)
	}
}
