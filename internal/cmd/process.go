package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/aggregator"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/concurrency"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/output"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/watcher"
)

func newProcessCmd(a *app) *cobra.Command {
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "process [paths...]",
		Short: "Merge log files and export jobs, reports, events and concurrency",
		Long: `Process reads every given log file (or every file matching the watch
pattern inside a given folder), merges them in order and writes the combined
CSV exports.

Examples:
  aelogs process ./logs
  aelogs process "logs/**/*.LOG.txt" --dir out
  aelogs process day1.LOG.txt day2.LOG.txt --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProcess(cmd, args, failOnError)
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any source could not be processed")
	return cmd
}

func (a *app) runProcess(cmd *cobra.Command, args []string, failOnError bool) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}

	ctx, stop := runContext(cmd.Context())
	defer stop()

	paths, err := resolvePaths(args, cfg.Watch.Pattern)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files matched %v", args)
	}
	log.Info().Int("files", len(paths)).Int("workers", cfg.Workers).Msg("processing")

	renderer := output.NewRenderer(cfg.Output.Format, cmd.OutOrStdout())
	agg, err := newAggregator(cfg, aggregator.Options{
		Logger: &log,
		Notify: func(u model.Update) {
			if err := renderer.RenderSource(u.Source); err != nil {
				log.Warn().Err(err).Msg("render failed")
			}
		},
	})
	if err != nil {
		return err
	}

	start := time.Now()
	snap, runErr := agg.Run(ctx, aggregator.FileSources(paths))

	series := concurrency.Compute(snap.JobList())
	for _, o := range series.Observations {
		log.Warn().Str("kind", string(o.Kind)).Msg(o.Detail)
	}
	sink, err := output.NewDirSink(cfg.Output.Dir, cfg.Output.Prefix, output.ModeOverwrite)
	if err != nil {
		return err
	}
	files, err := export(sink, snap, series)
	if err != nil {
		return err
	}

	if err := renderer.RenderSummary(summarize(snap, series, time.Since(start), files)); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if failed := snap.Failed(); failOnError && len(failed) > 0 {
		return fmt.Errorf("%d of %d sources failed", len(failed), len(snap.Sources))
	}
	return nil
}

// resolvePaths expands globs and folders in argument order. Files within
// one argument are sorted by name; a literal path that matches nothing is
// kept so its failure is reported.
func resolvePaths(args []string, pattern string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		glob := arg
		if fi, err := os.Stat(arg); err == nil {
			if !fi.IsDir() {
				add(absAll([]string{arg})[0])
				continue
			}
			glob = filepath.Join(arg, pattern)
		}

		matches, err := watcher.ExpandGlob(glob)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", arg, err)
		}
		if len(matches) == 0 && !hasMeta(glob) {
			add(absAll([]string{arg})[0])
			continue
		}
		slices.Sort(matches)
		for _, m := range absAll(matches) {
			add(m)
		}
	}
	return out, nil
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// export writes the four tables through sink and returns the written paths.
func export(sink *output.DirSink, snap aggregator.Snapshot, series concurrency.Series) ([]string, error) {
	if err := sink.WriteJobs(snap.JobList()); err != nil {
		return nil, err
	}
	if err := sink.WriteReports(snap.ReportList()); err != nil {
		return nil, err
	}
	if err := sink.WriteEvents(snap.Events); err != nil {
		return nil, err
	}
	if err := sink.WriteConcurrency(series.Samples); err != nil {
		return nil, err
	}
	return []string{
		sink.Path("jobs"), sink.Path("reports"), sink.Path("events"), sink.Path("concurrency"),
	}, nil
}

func summarize(snap aggregator.Snapshot, series concurrency.Series, took time.Duration, files []string) output.Summary {
	s := output.Summary{
		Sources:      len(snap.Sources),
		Failed:       len(snap.Failed()),
		Jobs:         len(snap.Jobs),
		Reports:      len(snap.Reports),
		Events:       len(snap.Events),
		Observations: len(snap.Observations) + len(series.Observations),
		Peak:         series.Peak,
		PeakAt:       series.PeakAt,
		Took:         took,
		Files:        files,
	}
	for _, j := range snap.Jobs {
		if j.Complete() {
			s.Complete++
		}
	}
	return s
}

// runContext is used by commands that must stop on SIGINT or SIGTERM.
func runContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
