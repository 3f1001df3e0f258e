// Package jobs orchestrates translation jobs.
//
// Each job runs on its own goroutine; a semaphore bounds how many translate
// at once, the rest wait in queued state. Jobs never share mutable state with
// callers: every read hands out a snapshot copy. Interruption is cooperative
// through a monotonic flag the worker polls between translation units — the
// unit in flight finishes, partial output is saved, and only then does the
// job reach its terminal state. The job context is only ever cancelled while
// the job still waits in the queue, or at process shutdown.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusError       Status = "error"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusInterrupted || s == StatusError
}

// Stats is the chunk tally of a running job.
type Stats struct {
	TotalChunks     int `json:"total_chunks"`
	CompletedChunks int `json:"completed_chunks"`
	FailedChunks    int `json:"failed_chunks"`
}

// Config describes the translation a job performs.
type Config struct {
	InputName      string `json:"input_name"`
	FileType       string `json:"file_type"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Model          string `json:"model"`
	Instructions   string `json:"instructions,omitempty"`
}

// Snapshot is a point-in-time copy of a job's state. Logs is a fresh slice
// on every call; mutating it does not affect the job.
type Snapshot struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Progress   float64   `json:"progress"`
	Stats      Stats     `json:"stats"`
	Logs       []string  `json:"logs,omitempty"`
	Error      string    `json:"error,omitempty"`
	OutputName string    `json:"output_name,omitempty"`
	Config     Config    `json:"config"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Runner performs the actual translation work of a job. Between units of work
// it must poll [Handle.Interrupted] and honour ctx, and it must write partial
// output before returning the error that stopped it. The returned name
// identifies the produced output.
type Runner func(ctx context.Context, h *Handle) (outputName string, err error)

// Manager tracks jobs and bounds their concurrency.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*jobState

	sem    *semaphore.Weighted
	sink   EventSink
	logger *slog.Logger
	wg     sync.WaitGroup
}

type jobState struct {
	snap        Snapshot
	cancel      context.CancelFunc
	interrupted bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventSink attaches a sink receiving job events. Delivery is
// best-effort; the sink must not block.
func WithEventSink(s EventSink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a Manager running at most maxConcurrent jobs at once.
// Non-positive values mean one.
func New(maxConcurrent int64, opts ...Option) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	m := &Manager{
		jobs:   make(map[string]*jobState),
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Submit registers a job and dispatches its worker. The returned id is
// immediately valid for Status and Interrupt calls.
func (m *Manager) Submit(ctx context.Context, cfg Config, run Runner) (string, error) {
	if run == nil {
		return "", fmt.Errorf("jobs: submit: nil runner")
	}

	id := uuid.NewString()
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	st := &jobState{
		snap: Snapshot{
			ID:        id,
			Status:    StatusQueued,
			Config:    cfg,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	m.jobs[id] = st
	m.mu.Unlock()

	m.emit(Event{JobID: id, Type: EventStatus, Status: StatusQueued, Time: time.Now().UTC()})
	m.logger.Info("job submitted", "job_id", id,
		"input", cfg.InputName, "source", cfg.SourceLanguage, "target", cfg.TargetLanguage)

	m.wg.Add(1)
	go m.work(jobCtx, id, run)
	return id, nil
}

// work drives one job from queued to a terminal state.
func (m *Manager) work(ctx context.Context, id string, run Runner) {
	defer m.wg.Done()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		// Interrupted while still queued.
		m.finish(id, "", err)
		return
	}
	defer m.sem.Release(1)

	if !m.transition(id, StatusRunning) {
		return
	}

	output, err := run(ctx, &Handle{manager: m, id: id, ctx: ctx})
	m.finish(id, output, err)
}

// transition moves a non-terminal job to status. It reports false when the
// job is gone or already terminal.
func (m *Manager) transition(id string, status Status) bool {
	m.mu.Lock()
	st, ok := m.jobs[id]
	if !ok || st.snap.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	st.snap.Status = status
	m.mu.Unlock()

	m.emit(Event{JobID: id, Type: EventStatus, Status: status, Time: time.Now().UTC()})
	return true
}

// finish records the terminal state of a job. An interrupt observed by the
// worker wins over generic context errors; any other error is dominant.
func (m *Manager) finish(id, output string, err error) {
	m.mu.Lock()
	st, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	status := StatusCompleted
	switch {
	case err != nil && st.interrupted:
		status = StatusInterrupted
	case err != nil:
		status = StatusError
		st.snap.Error = err.Error()
	}
	st.snap.Status = status
	st.snap.OutputName = output
	st.snap.FinishedAt = time.Now().UTC()
	if status == StatusCompleted {
		st.snap.Progress = 100
	}
	interrupted := st.interrupted
	st.cancel()
	m.mu.Unlock()

	m.emit(Event{JobID: id, Type: EventStatus, Status: status, Time: time.Now().UTC()})
	if err != nil && !interrupted {
		m.logger.Error("job failed", "job_id", id, "err", err)
	} else {
		m.logger.Info("job finished", "job_id", id, "status", status, "output", output)
	}
}

// Status returns a snapshot of the job.
func (m *Manager) Status(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return st.copySnapshot(), true
}

// Interrupt requests cooperative cancellation of a job. It reports whether
// the request was accepted: only queued or running jobs can be interrupted,
// and the flag never resets. A running job keeps its context — any request
// in flight finishes and the worker stops at its next poll. Only a job still
// waiting in the queue has its context cancelled, to unblock the semaphore.
func (m *Manager) Interrupt(id string) bool {
	m.mu.Lock()
	st, ok := m.jobs[id]
	if !ok || st.snap.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	st.interrupted = true
	if st.snap.Status == StatusQueued {
		st.cancel()
	}
	m.mu.Unlock()

	m.logger.Info("job interrupt requested", "job_id", id)
	return true
}

// Shutdown interrupts every non-terminal job and cancels its context. Unlike
// Interrupt this aborts work in flight — the process is going away. Callers
// should Wait afterwards so partial output still reaches disk.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.jobs))
	for _, st := range m.jobs {
		if st.snap.Status.Terminal() {
			continue
		}
		st.interrupted = true
		cancels = append(cancels, st.cancel)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// List returns snapshots of all jobs, most recently started first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, st := range m.jobs {
		out = append(out, st.copySnapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Wait blocks until every submitted job has reached a terminal state.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (st *jobState) copySnapshot() Snapshot {
	snap := st.snap
	snap.Logs = append([]string(nil), st.snap.Logs...)
	return snap
}

func (m *Manager) emit(e Event) {
	if m.sink != nil {
		m.sink.Emit(e)
	}
}
