package hub

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

// BenchmarkHubBroadcast measures the cost of broadcasting to N subscribers.
func BenchmarkHubBroadcast1(b *testing.B)  { benchHubBroadcast(b, 1) }
func BenchmarkHubBroadcast5(b *testing.B)  { benchHubBroadcast(b, 5) }
func BenchmarkHubBroadcast10(b *testing.B) { benchHubBroadcast(b, 10) }

func benchHubBroadcast(b *testing.B, numSubs int) {
	input := make(chan model.Update, b.N+1)
	h := New(input, Options{Logger: zerolog.Nop()})

	for i := 0; i < numSubs; i++ {
		ch := h.Subscribe()
		go func() {
			for range ch {
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		input <- model.Update{TotalJobs: i, TotalEvents: 4 * i}
	}
}
