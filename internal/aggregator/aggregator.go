package aggregator

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/lifecycle"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/source"
)

// Snapshot is an immutable copy of the aggregated state.
type Snapshot struct {
	Jobs         map[string]model.JobRecord    `json:"jobs"`
	Reports      map[string]model.ReportRecord `json:"reports"`
	Events       []model.EventLogEntry         `json:"events"`
	Sources      []model.SourceStatus          `json:"sources"`
	Observations []model.Observation           `json:"observations"`
}

// JobList returns the jobs ordered by run id.
func (s Snapshot) JobList() []model.JobRecord {
	out := slices.Collect(maps.Values(s.Jobs))
	slices.SortFunc(out, func(a, b model.JobRecord) int { return strings.Compare(a.RunID, b.RunID) })
	return out
}

// ReportList returns the reports ordered by report id.
func (s Snapshot) ReportList() []model.ReportRecord {
	out := slices.Collect(maps.Values(s.Reports))
	slices.SortFunc(out, func(a, b model.ReportRecord) int { return strings.Compare(a.ReportID, b.ReportID) })
	return out
}

// Failed returns the statuses of sources that could not be processed.
func (s Snapshot) Failed() []model.SourceStatus {
	var out []model.SourceStatus
	for _, st := range s.Sources {
		if !st.OK {
			out = append(out, st)
		}
	}
	return out
}

// Options configures an Aggregator.
type Options struct {
	// Workers bounds how many sources Run parses in parallel.
	Workers int
	Logger  *zerolog.Logger
	// Notify, if set, is called after every merge outside the lock.
	Notify func(model.Update)
	// Merged, if set, receives each successfully folded source after it
	// was merged. Live output appends its rows from here.
	Merged func(*lifecycle.Result)
}

// Aggregator merges per-source results into running job, report and event
// collections. Parsing happens outside the lock; each merge holds it for
// one source only.
type Aggregator struct {
	mu           sync.RWMutex
	reader       *source.Reader
	folder       *lifecycle.Folder
	workers      int
	log          zerolog.Logger
	notify       func(model.Update)
	merged       func(*lifecycle.Result)
	jobs         map[string]model.JobRecord
	reports      map[string]model.ReportRecord
	events       []model.EventLogEntry
	sources      []model.SourceStatus
	observations []model.Observation
}

// New creates an empty Aggregator.
func New(reader *source.Reader, folder *lifecycle.Folder, opts Options) *Aggregator {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Aggregator{
		reader:  reader,
		folder:  folder,
		workers: opts.Workers,
		log:     log.With().Str("component", "aggregator").Logger(),
		notify:  opts.Notify,
		merged:  opts.Merged,
		jobs:    make(map[string]model.JobRecord),
		reports: make(map[string]model.ReportRecord),
	}
}

// Snapshot returns a copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Snapshot{
		Jobs:         maps.Clone(a.jobs),
		Reports:      maps.Clone(a.reports),
		Events:       slices.Clone(a.events),
		Sources:      slices.Clone(a.sources),
		Observations: slices.Clone(a.observations),
	}
}

// Add parses one source and merges it. Sources added one at a time end up
// in the same state as a Run over the same sources in the same order.
func (a *Aggregator) Add(ctx context.Context, src Source) (model.SourceStatus, error) {
	if err := ctx.Err(); err != nil {
		return model.SourceStatus{Name: src.Name}, err
	}
	return a.merge(a.parse(src)), nil
}

// Run processes sources with a pool of workers and merges the results in
// input order. Cancellation is honoured between sources; whatever was
// merged before it is still in the returned snapshot.
func (a *Aggregator) Run(ctx context.Context, srcs []Source) (Snapshot, error) {
	workers := min(a.workers, len(srcs))
	results := make([]parsed, len(srcs))
	done := make([]chan struct{}, len(srcs))
	for i := range done {
		done[i] = make(chan struct{})
	}

	feedCtx, stop := context.WithCancel(ctx)
	idx := make(chan int)
	go func() {
		defer close(idx)
		for i := range srcs {
			select {
			case idx <- i:
			case <-feedCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				results[i] = a.parse(srcs[i])
				close(done[i])
			}
		}()
	}

	var err error
	for i := range srcs {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-done[i]:
			a.merge(results[i])
		}
		if err != nil {
			break
		}
	}

	stop()
	wg.Wait()
	if err != nil {
		a.log.Warn().Err(err).Int("total", len(srcs)).Msg("batch cancelled")
	}
	return a.Snapshot(), err
}

// Start merges sources from in, in arrival order, until in is closed or
// ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context, in <-chan Source) {
	for {
		select {
		case <-ctx.Done():
			return
		case src, ok := <-in:
			if !ok {
				return
			}
			if _, err := a.Add(ctx, src); err != nil {
				return
			}
		}
	}
}

// parsed is one source's worker output.
type parsed struct {
	status model.SourceStatus
	result *lifecycle.Result
}

func (a *Aggregator) parse(src Source) parsed {
	start := time.Now()
	p := parsed{status: model.SourceStatus{Name: src.Name}}

	fail := func(err error) parsed {
		p.status.Error = err.Error()
		p.status.Duration = time.Since(start)
		return p
	}

	rc, err := src.Open()
	if err != nil {
		return fail(err)
	}
	txt, err := a.reader.Read(src.Name, rc)
	rc.Close()
	if err != nil {
		return fail(err)
	}

	res := a.folder.Fold(src.Name, txt.Content, lifecycle.FoldOptions{Continuation: src.Continuation})
	p.result = res
	p.status.OK = true
	p.status.Encoding = txt.Encoding
	p.status.Bytes = txt.Bytes
	p.status.Lines = res.Lines
	p.status.Events = len(res.Events)
	p.status.Jobs = len(res.Jobs)
	p.status.Reports = len(res.Reports)
	p.status.First = res.First
	p.status.Last = res.Last
	p.status.Duration = time.Since(start)
	return p
}

// merge folds one parsed source into the running state.
func (a *Aggregator) merge(p parsed) model.SourceStatus {
	a.mu.Lock()
	st := p.status
	if r := p.result; r != nil {
		obs := slices.Clone(r.Observations)

		// Ends seen before any start in this source apply to what earlier
		// sources reported.
		for _, end := range r.PendingEnds {
			rep, ok := a.reports[end.ReportID]
			if !ok {
				obs = append(obs, model.Observation{
					Source: r.Source,
					Line:   end.Line,
					Kind:   model.OrphanReportEnd,
					Detail: "report " + end.ReportID + " ended without a start",
				})
				continue
			}
			rep.End(end.Timestamp, end.MessageCode)
			a.reports[end.ReportID] = rep
		}
		for id, rep := range r.Reports {
			a.reports[id] = rep
		}
		for id, job := range r.Jobs {
			a.jobs[id] = model.MergeJob(a.jobs[id], job)
		}
		a.events = mergeEvents(a.events, r.Events)
		a.observations = append(a.observations, obs...)
		st.Observations = len(obs)
	}
	a.sources = append(a.sources, st)

	update := model.Update{
		Source:      st,
		TotalJobs:   len(a.jobs),
		TotalEvents: len(a.events),
		Reports:     len(a.reports),
		Active:      activeJobs(a.jobs),
	}
	a.mu.Unlock()

	a.logMerged(st, p.result)
	if a.merged != nil && p.result != nil {
		a.merged(p.result)
	}
	if a.notify != nil {
		a.notify(update)
	}
	return st
}

func (a *Aggregator) logMerged(st model.SourceStatus, r *lifecycle.Result) {
	if !st.OK {
		a.log.Error().Str("source", st.Name).Str("err", st.Error).Msg("source skipped")
		return
	}
	if r != nil {
		for _, o := range r.Observations {
			a.log.Debug().Str("source", o.Source).Int("line", o.Line).Str("kind", string(o.Kind)).Msg(o.Detail)
		}
	}
	ev := a.log.Info().
		Str("source", st.Name).
		Str("encoding", st.Encoding).
		Int("jobs", st.Jobs).
		Int("reports", st.Reports).
		Int("events", st.Events).
		Dur("took", st.Duration)
	if !st.First.IsZero() {
		ev = ev.Time("from", st.First).Time("to", st.Last)
	}
	ev.Msg("source merged")
	if st.Observations > 0 {
		a.log.Warn().Str("source", st.Name).Int("observations", st.Observations).Msg("data quality issues")
	}
}

// mergeEvents merges two timestamp-sorted logs. On equal timestamps base
// entries come first, which keeps the result identical to a stable sort
// of base followed by add.
func mergeEvents(base, add []model.EventLogEntry) []model.EventLogEntry {
	if len(add) == 0 {
		return base
	}
	out := make([]model.EventLogEntry, 0, len(base)+len(add))
	i, j := 0, 0
	for i < len(base) && j < len(add) {
		if add[j].Timestamp.Before(base[i].Timestamp) {
			out = append(out, add[j])
			j++
		} else {
			out = append(out, base[i])
			i++
		}
	}
	out = append(out, base[i:]...)
	return append(out, add[j:]...)
}

func activeJobs(jobs map[string]model.JobRecord) int {
	n := 0
	for _, j := range jobs {
		if !j.StartTime.IsZero() && j.EndTime.IsZero() {
			n++
		}
	}
	return n
}
