package concurrency

import (
	"cmp"
	"slices"
	"time"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

// SampleNames is how many active job names a sample carries.
const SampleNames = 3

// Series is the computed time series plus data-quality counters.
type Series struct {
	Samples []model.ConcurrencySample `json:"samples"`
	Peak    int                       `json:"peak"`
	PeakAt  time.Time                 `json:"peak_at"`

	// UnmatchedEnds counts end tokens for jobs that were not active,
	// either because no start was seen or because it came later.
	UnmatchedEnds int                 `json:"unmatched_ends"`
	Observations  []model.Observation `json:"observations,omitempty"`
}

// Final returns the last sample's count, or 0 for an empty series.
func (s Series) Final() int {
	if len(s.Samples) == 0 {
		return 0
	}
	return s.Samples[len(s.Samples)-1].Count
}

type token struct {
	at    time.Time
	delta int // +1 start, -1 end
	runID string
	name  string
}

// Compute sweeps over the jobs' start and end times. At equal timestamps
// ends are applied before starts, so a job ending at the instant another
// starts is not counted twice. An end that comes before its own run's start
// (zero duration or reversed times) cancels that start instead of leaving
// the run active.
func Compute(jobs []model.JobRecord) Series {
	tokens := make([]token, 0, 2*len(jobs))
	unstarted := make(map[string]time.Time) // run id -> start not yet applied
	for _, j := range jobs {
		if !j.StartTime.IsZero() {
			tokens = append(tokens, token{at: j.StartTime, delta: 1, runID: j.RunID, name: j.Name})
			unstarted[j.RunID] = j.StartTime
		}
		if !j.EndTime.IsZero() {
			tokens = append(tokens, token{at: j.EndTime, delta: -1, runID: j.RunID, name: j.Name})
		}
	}
	slices.SortFunc(tokens, func(a, b token) int {
		return cmp.Or(
			a.at.Compare(b.at),
			cmp.Compare(a.delta, b.delta),
			cmp.Compare(a.runID, b.runID),
		)
	})

	var s Series
	active := make(map[string]string) // run id -> name
	cancelled := make(map[string]bool)
	for _, tk := range tokens {
		switch {
		case tk.delta > 0:
			delete(unstarted, tk.runID)
			if cancelled[tk.runID] {
				delete(cancelled, tk.runID)
			} else {
				active[tk.runID] = tk.name
			}
		case hasKey(active, tk.runID):
			delete(active, tk.runID)
		default:
			start, pending := unstarted[tk.runID]
			if pending {
				cancelled[tk.runID] = true
			}
			switch {
			case pending && start.Equal(tk.at):
				// zero duration: never active
			case pending:
				s.unmatched(tk, "ended before it started")
			default:
				s.unmatched(tk, "ended while not active")
			}
		}

		sample := sampleOf(tk.at, active)
		if sample.Count > s.Peak {
			s.Peak, s.PeakAt = sample.Count, tk.at
		}
		s.Samples = append(s.Samples, sample)
	}
	return s
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

func (s *Series) unmatched(tk token, detail string) {
	s.UnmatchedEnds++
	s.Observations = append(s.Observations, model.Observation{
		Source: "concurrency",
		Line:   -1,
		Kind:   model.UnmatchedJobEnd,
		Detail: "job " + tk.name + " (RunID " + tk.runID + ") " + detail,
	})
}

func sampleOf(at time.Time, active map[string]string) model.ConcurrencySample {
	names := make([]string, 0, len(active))
	for _, n := range active {
		names = append(names, n)
	}
	slices.Sort(names)

	sample := model.ConcurrencySample{Timestamp: at, Count: len(active)}
	if len(names) > SampleNames {
		sample.More = len(names) - SampleNames
		names = names[:SampleNames]
	}
	sample.Active = names
	return sample
}
