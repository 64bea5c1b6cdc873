package watcher

import "time"

// Operation is the kind of change seen on the watched file.
type Operation int

const (
	// OpCreate means the file appeared, including by rename over it.
	OpCreate Operation = iota
	// OpModify means the file was written in place.
	OpModify
	// OpDelete means the file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to the watched file.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long the file must stay quiet before a reload.
	// Default: 750ms
	DebounceWindow time.Duration

	// PollInterval is the stat interval used when fsnotify is unavailable.
	// Default: 5s
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 750 * time.Millisecond,
		PollInterval:   5 * time.Second,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	return o
}
