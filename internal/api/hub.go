package api

import (
	"sync"

	"github.com/MrWong99/tomeglot/internal/jobs"
)

// subscriberBuffer is the per-subscriber event channel capacity. A subscriber
// that falls this far behind starts losing events rather than stalling the
// jobs manager.
const subscriberBuffer = 64

// Hub fans job events out to connected websocket clients. It implements
// [jobs.EventSink]; the jobs manager emits into it, subscribers drain their
// own buffered channel. Safe for concurrent use.
type Hub struct {
	mu   sync.Mutex
	subs map[chan jobs.Event]struct{}
}

var _ jobs.EventSink = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan jobs.Event]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel together
// with an unsubscribe function. The channel is closed on unsubscribe.
func (h *Hub) Subscribe() (<-chan jobs.Event, func()) {
	ch := make(chan jobs.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Emit implements [jobs.EventSink]. Slow subscribers lose events instead of
// blocking the emitter.
func (h *Hub) Emit(e jobs.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
