package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/aggregator"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/concurrency"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/config"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/hub"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/lifecycle"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/output"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/server"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/tailer"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [folders...]",
		Short: "Follow log folders and keep the exports up to date",
		Long: `Watch one or more folders for scheduler logs. Existing files are merged
first, then new files and appended lines are merged as they arrive. Rows are
appended to the live_combined_* exports as each chunk is merged, and the
combined exports are rewritten from the full state on shutdown. When a
checkpoint exists, the already read part of each file is merged again on
startup so the combined exports cover every session.

Examples:
  aelogs watch ./logs
  aelogs watch ./logs --addr :8080
  aelogs watch ./logs --from-start=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runWatch,
	}

	f := cmd.Flags()
	f.String("addr", "", "serve the status API and update stream on this address")
	f.String("pattern", "*.LOG.txt", "file name pattern inside watched folders")
	f.String("checkpoint", ".aelogs-state.json", "offset checkpoint file (empty keeps offsets in memory)")
	f.Bool("from-start", true, "read files without a checkpoint from the beginning")

	bind(a.v, f.Lookup("addr"), "server.addr")
	bind(a.v, f.Lookup("pattern"), "watch.pattern")
	bind(a.v, f.Lookup("checkpoint"), "watch.checkpoint")
	bind(a.v, f.Lookup("from-start"), "watch.from_start")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}

	ctx, stop := runContext(cmd.Context())
	defer stop()

	w, err := watcher.New(args, cfg.Watch.Pattern, log)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if len(w.Dirs()) == 0 {
		return fmt.Errorf("none of the folders can be watched: %v", args)
	}
	log.Info().Strs("folders", w.Dirs()).Int("files", len(w.Paths())).Str("pattern", cfg.Watch.Pattern).Msg("watching")

	ckpt, err := tailer.NewCheckpoint(cfg.Watch.Checkpoint)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	tail := tailer.New(w, ckpt, tailer.Options{FromStart: cfg.Watch.FromStart, Logger: log})

	live, err := newLiveExport(cfg, log)
	if err != nil {
		return err
	}

	renderer := output.NewRenderer(cfg.Output.Format, cmd.OutOrStdout())
	var updates chan model.Update
	if cfg.Server.Addr != "" {
		updates = make(chan model.Update, 64)
	}

	var (
		agg       *aggregator.Aggregator
		replaying bool
	)
	agg, err = newAggregator(cfg, aggregator.Options{
		Workers: 1,
		Logger:  &log,
		Merged: func(res *lifecycle.Result) {
			if !replaying {
				live.append(res, agg.Snapshot())
			}
		},
		Notify: func(u model.Update) {
			if err := renderer.RenderSource(u.Source); err != nil {
				log.Warn().Err(err).Msg("render failed")
			}
			if updates == nil {
				return
			}
			select {
			case updates <- u:
			case <-ctx.Done():
			}
		},
	})
	if err != nil {
		return err
	}

	if updates != nil {
		h := hub.New(updates, hub.Options{Rate: 10, Burst: 5, Logger: log})
		go h.Start(ctx)
		srv := server.New(h, agg, cfg.Server.Addr, log)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	start := time.Now()

	// Rebuild what earlier sessions merged so the shutdown export stays
	// cumulative. Those rows are already in the live files.
	if prior := tailer.Replay(ckpt, w.Paths()); len(prior) > 0 {
		replaying = true
		for _, src := range prior {
			_, _ = agg.Add(context.Background(), src)
		}
		replaying = false
		log.Info().Int("files", len(prior)).Msg("restored state from checkpoint")
	}

	go w.Start(ctx)
	go tail.Start(ctx)
	agg.Start(ctx, tail.Sources())

	// Chunks already handed over have their offsets checkpointed; merge
	// them before exporting. The channel closes once the checkpoint is saved.
	for src := range tail.Sources() {
		_, _ = agg.Add(context.Background(), src)
	}

	log.Info().Msg("shutting down, writing combined exports")
	snap := agg.Snapshot()
	series := concurrency.Compute(snap.JobList())
	sink, err := output.NewDirSink(cfg.Output.Dir, cfg.Output.Prefix, output.ModeOverwrite)
	if err != nil {
		return err
	}
	files, err := export(sink, snap, series)
	if err != nil {
		return err
	}
	return renderer.RenderSummary(summarize(snap, series, time.Since(start), files))
}

// liveExport appends each merged chunk to the live files and keeps the
// live concurrency series current.
type liveExport struct {
	rows   *output.DirSink // append
	series *output.DirSink // overwrite
	log    zerolog.Logger
}

func newLiveExport(cfg config.Config, log zerolog.Logger) (*liveExport, error) {
	rows, err := output.NewDirSink(cfg.Output.Dir, cfg.Output.LivePrefix, output.ModeAppend)
	if err != nil {
		return nil, err
	}
	return &liveExport{
		rows:   rows,
		series: &output.DirSink{Dir: rows.Dir, Prefix: rows.Prefix, Mode: output.ModeOverwrite},
		log:    log.With().Str("component", "live").Logger(),
	}, nil
}

// append writes the chunk's jobs, reports and events. Reports closed by
// an end in this chunk are written with their merged state.
func (l *liveExport) append(res *lifecycle.Result, snap aggregator.Snapshot) {
	jobs := slices.Collect(maps.Values(res.Jobs))
	slices.SortFunc(jobs, func(a, b model.JobRecord) int { return strings.Compare(a.RunID, b.RunID) })

	reports := maps.Clone(res.Reports)
	for _, end := range res.PendingEnds {
		if rep, ok := snap.Reports[end.ReportID]; ok {
			reports[end.ReportID] = rep
		}
	}
	repList := slices.Collect(maps.Values(reports))
	slices.SortFunc(repList, func(a, b model.ReportRecord) int { return strings.Compare(a.ReportID, b.ReportID) })

	errs := []error{
		l.rows.WriteJobs(jobs),
		l.rows.WriteReports(repList),
		l.rows.WriteEvents(res.Events),
		l.series.WriteConcurrency(concurrency.Compute(snap.JobList()).Samples),
	}
	for _, err := range errs {
		if err != nil {
			l.log.Error().Err(err).Str("source", res.Source).Msg("live export failed")
		}
	}
}

