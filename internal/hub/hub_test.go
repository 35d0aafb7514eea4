package hub

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

func update(jobs int) model.Update {
	return model.Update{Source: model.SourceStatus{Name: "day1.LOG.txt", OK: true}, TotalJobs: jobs}
}

func TestHubBroadcast(t *testing.T) {
	input := make(chan model.Update, 10)
	h := New(input, Options{Logger: zerolog.Nop()})

	sub1 := h.Subscribe()
	sub2 := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Start(ctx)

	input <- update(3)

	for i, sub := range []<-chan model.Update{sub1, sub2} {
		select {
		case u := <-sub:
			if u.TotalJobs != 3 {
				t.Errorf("sub%d: expected 3 jobs, got %d", i+1, u.TotalJobs)
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("sub%d: timed out", i+1)
		}
	}
}

func TestHubSlowConsumer(t *testing.T) {
	input := make(chan model.Update, 10)
	h := New(input, Options{Logger: zerolog.Nop()})

	// Subscribe but never read.
	_ = h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Start(ctx)

	for i := 0; i < subscriberBuffer+100; i++ {
		input <- update(i)
	}

	time.Sleep(500 * time.Millisecond)

	if h.Dropped() == 0 {
		t.Error("expected dropped updates for slow consumer, got 0")
	}
}

func TestHubCoalescesUnderRateLimit(t *testing.T) {
	input := make(chan model.Update, 10)
	h := New(input, Options{Rate: 0.001, Burst: 1, Logger: zerolog.Nop()})
	sub := h.Subscribe()

	done := make(chan struct{})
	go func() {
		h.Start(context.Background())
		close(done)
	}()

	for i := 1; i <= 6; i++ {
		input <- update(i)
	}
	close(input)
	<-done

	var got []int
	for u := range sub {
		got = append(got, u.TotalJobs)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 6 {
		t.Errorf("expected first and latest update [1 6], got %v", got)
	}
	if h.Coalesced() != 4 {
		t.Errorf("expected 4 coalesced updates, got %d", h.Coalesced())
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := New(make(chan model.Update), Options{Logger: zerolog.Nop()})
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	if _, ok := <-sub; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	h.Unsubscribe(sub)
}
