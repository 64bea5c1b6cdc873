package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/markrag/internal/index"
)

// Status is the lifecycle state of one pass.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunState is an immutable snapshot of one pass.
type RunState struct {
	Pass       index.Pass `json:"pass"`
	Status     Status     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Done       int        `json:"done"`
	Total      int        `json:"total"`
	LastError  string     `json:"lastError,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Running reports whether the pass is in flight.
func (r RunState) Running() bool {
	return r.Status == StatusRunning
}

// Percent returns progress in [0, 100].
func (r RunState) Percent() float64 {
	if r.Total <= 0 {
		if r.Status == StatusCompleted {
			return 100
		}
		return 0
	}
	return min(100, float64(r.Done)/float64(r.Total)*100)
}

// Snapshot is the scheduler state at one instant.
type Snapshot struct {
	Metadata RunState `json:"metadata"`
	Content  RunState `json:"content"`
	// QueuedContentReason is the reason of the single queued content run, if any.
	QueuedContentReason string `json:"queuedContentReason,omitempty"`
	// DeferredMetadataReason is set while a metadata run waits for the
	// content run to finish.
	DeferredMetadataReason string `json:"deferredMetadataReason,omitempty"`
	Sessions               int    `json:"sessions"`
}

// Busy reports whether either pass is running.
func (s Snapshot) Busy() bool {
	return s.Metadata.Running() || s.Content.Running()
}

// passState is the mutable tracker behind a RunState.
// All methods must be called with the scheduler mutex held.
type passState struct {
	state RunState
}

func newPassState(pass index.Pass) passState {
	return passState{state: RunState{Pass: pass, Status: StatusIdle}}
}

func (p *passState) start(reason string, now time.Time) {
	p.state = RunState{
		Pass:      p.state.Pass,
		Status:    StatusRunning,
		Reason:    reason,
		StartedAt: &now,
	}
}

func (p *passState) progress(done, total int) {
	p.state.Done = done
	p.state.Total = total
}

func (p *passState) finish(err error, now time.Time) {
	p.state.FinishedAt = &now
	if err != nil {
		p.state.Status = StatusFailed
		p.state.LastError = err.Error()
		return
	}
	p.state.Status = StatusCompleted
	p.state.Done = p.state.Total
}

// Future is the completion signal of one pass run.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// completedFuture returns a Future that is already resolved with err.
func completedFuture(err error) *Future {
	f := newFuture()
	f.resolve(err)
	return f
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the run finishes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the run error. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the run finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
