package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/model"
)

const subscriberBuffer = 256

// Hub receives merge updates and broadcasts them to all subscribers.
// Broadcasts are rate limited; updates arriving faster than the limit are
// coalesced so subscribers always end up with the latest totals.
type Hub struct {
	input       <-chan model.Update
	limiter     *rate.Limiter
	log         zerolog.Logger
	mu          sync.RWMutex
	subscribers []chan model.Update
	pending     *model.Update
	dropped     int64
	coalesced   int64
}

// Options configures a Hub.
type Options struct {
	// Rate is the maximum number of broadcasts per second. Zero means
	// unlimited.
	Rate   float64
	Burst  int
	Logger zerolog.Logger
}

// New creates a Hub that reads updates from input.
func New(input <-chan model.Update, opts Options) *Hub {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Hub{
		input:   input,
		limiter: rate.NewLimiter(limit, max(opts.Burst, 1)),
		log:     opts.Logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe returns a buffered channel that will receive updates.
// Multiple consumers can subscribe; each gets a copy of every broadcast.
func (h *Hub) Subscribe() <-chan model.Update {
	ch := make(chan model.Update, subscriberBuffer)
	h.mu.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (h *Hub) Unsubscribe(sub <-chan model.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, ch := range h.subscribers {
		if ch == sub {
			close(ch)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Dropped returns the total number of updates dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Coalesced returns how many updates were superseded by a later one
// before they could be broadcast.
func (h *Hub) Coalesced() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.coalesced
}

// Start begins reading from the input channel and broadcasting.
// Blocks until the context is cancelled or the input channel is closed;
// a held back update is flushed before returning.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	flush := time.NewTicker(100 * time.Millisecond)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-h.input:
			if !ok {
				h.flush(true)
				return
			}
			h.publish(u)
		case <-flush.C:
			h.flush(false)
		}
	}
}

// publish broadcasts u now if the limiter allows, otherwise holds it as
// the latest pending update.
func (h *Hub) publish(u model.Update) {
	h.mu.Lock()
	if h.pending != nil {
		h.coalesced++
	}
	h.pending = &u
	h.mu.Unlock()
	h.flush(false)
}

func (h *Hub) flush(force bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || (!force && !h.limiter.Allow()) {
		return
	}
	u := *h.pending
	h.pending = nil
	h.broadcast(u)
}

// broadcast sends an update to all subscribers. If a subscriber's channel
// is full, the update is dropped for that subscriber. Callers hold mu.
func (h *Hub) broadcast(u model.Update) {
	for _, ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			h.dropped++
			h.log.Warn().Int64("dropped", h.dropped).Msg("dropped update for slow consumer")
		}
	}
}

// closeAll closes all subscriber channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
}
