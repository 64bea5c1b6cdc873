package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer holds file events until the watched path has been quiet for the
// debounce window, then emits them as one batch. Events for the same path
// are merged:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - DELETE then CREATE becomes MODIFY (rename-replace)
//   - anything else keeps the latest operation
type Debouncer struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]FileEvent
	order   []string
	timer   *time.Timer
	stopped bool
	output  chan []FileEvent
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 4),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		merged, keep := merge(prev, event)
		if keep {
			d.pending[event.Path] = merged
		} else {
			d.drop(event.Path)
		}
	} else {
		d.pending[event.Path] = event
		d.order = append(d.order, event.Path)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func merge(prev, next FileEvent) (FileEvent, bool) {
	switch {
	case prev.Operation == OpCreate && next.Operation == OpModify:
		prev.Timestamp = next.Timestamp
		return prev, true
	case prev.Operation == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case prev.Operation == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return next, true
	default:
		return next, true
	}
}

func (d *Debouncer) drop(path string) {
	delete(d.pending, path)
	for i, p := range d.order {
		if p == path {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// flush emits the pending events in first-seen order.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.order) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.order))
	for _, p := range d.order {
		batch = append(batch, d.pending[p])
	}
	d.pending = make(map[string]FileEvent)
	d.order = nil

	select {
	case d.output <- batch:
	default:
		// A reload is already queued and will read the latest file.
		d.logger.Debug("debounce_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
