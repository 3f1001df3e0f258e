package jobs

import (
	"context"
	"time"
)

// EventType classifies job events.
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventStats    EventType = "stats"
	EventLog      EventType = "log"
)

// Event is one structured job event. Only the fields matching Type carry
// meaning; the rest are zero.
type Event struct {
	JobID    string    `json:"job_id"`
	Type     EventType `json:"type"`
	Status   Status    `json:"status,omitempty"`
	Progress float64   `json:"progress,omitempty"`
	Stats    Stats     `json:"stats,omitzero"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// EventSink receives job events out-of-band. Implementations must be fast
// and non-blocking; delivery failures are theirs to swallow.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// MultiSink fans each event out to every sink, in order.
type MultiSink []EventSink

func (ms MultiSink) Emit(e Event) {
	for _, s := range ms {
		s.Emit(e)
	}
}

// Handle is the runner's write access to its own job record.
type Handle struct {
	manager *Manager
	id      string
	ctx     context.Context
}

// ID returns the job id.
func (h *Handle) ID() string { return h.id }

// Context returns the job context. It stays live across an interrupt request
// and is only cancelled at process shutdown.
func (h *Handle) Context() context.Context { return h.ctx }

// Interrupted reports whether an interrupt has been requested for this job.
// Runners poll it between units of work; the job context stays live so any
// provider request in flight can finish.
func (h *Handle) Interrupted() bool {
	m := h.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[h.id]
	return ok && st.interrupted
}

// SetProgress updates the completion percentage. Updates after an interrupt
// request are dropped so the last observed progress survives.
func (h *Handle) SetProgress(percent float64) {
	m := h.manager
	m.mu.Lock()
	st, ok := m.jobs[h.id]
	if !ok || st.interrupted || st.snap.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	st.snap.Progress = percent
	m.mu.Unlock()

	m.emit(Event{JobID: h.id, Type: EventProgress, Progress: percent, Time: time.Now().UTC()})
}

// SetStats updates the chunk tally.
func (h *Handle) SetStats(s Stats) {
	m := h.manager
	m.mu.Lock()
	st, ok := m.jobs[h.id]
	if !ok || st.snap.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	st.snap.Stats = s
	m.mu.Unlock()

	m.emit(Event{JobID: h.id, Type: EventStats, Stats: s, Time: time.Now().UTC()})
}

// Log appends a line to the job log.
func (h *Handle) Log(message string) {
	m := h.manager
	m.mu.Lock()
	st, ok := m.jobs[h.id]
	if !ok {
		m.mu.Unlock()
		return
	}
	st.snap.Logs = append(st.snap.Logs, message)
	m.mu.Unlock()

	m.emit(Event{JobID: h.id, Type: EventLog, Message: message, Time: time.Now().UTC()})
}
