package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reports debounced changes to a single file.
type FileWatcher struct {
	path   string
	dir    string
	name   string
	opts   Options
	logger *slog.Logger

	fsWatcher   *fsnotify.Watcher
	useFsnotify bool
	debouncer   *Debouncer

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// NewFileWatcher creates a watcher for path. fsnotify is preferred; polling
// is used when it cannot be initialized or opts.ForcePolling is set.
func NewFileWatcher(path string, opts Options, logger *slog.Logger) (*FileWatcher, error) {
	if path == "" {
		return nil, errors.New("watch path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithDefaults()

	w := &FileWatcher{
		path:      abs,
		dir:       filepath.Dir(abs),
		name:      filepath.Base(abs),
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			w.useFsnotify = true
		} else {
			logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		}
	}
	return w, nil
}

// Events returns the channel of debounced batches. It is closed by Stop.
func (w *FileWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Mode returns "fsnotify" or "polling".
func (w *FileWatcher) Mode() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string { return w.path }

// Start watches until ctx is done or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	if w.useFsnotify {
		if err := w.fsWatcher.Add(w.dir); err != nil {
			// The directory may not exist yet or may be on a filesystem
			// without inotify support.
			w.logger.Warn("fsnotify_add_failed",
				slog.String("dir", w.dir),
				slog.String("error", err.Error()))
			_ = w.fsWatcher.Close()
			w.fsWatcher = nil
			w.useFsnotify = false
		}
	}

	if w.useFsnotify {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *FileWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *FileWatcher) handleFsnotify(ev fsnotify.Event) {
	if filepath.Base(ev.Name) != w.name {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
}

type fileStat struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statFile(path string) fileStat {
	info, err := os.Stat(path)
	if err != nil {
		return fileStat{}
	}
	return fileStat{exists: true, size: info.Size(), modTime: info.ModTime()}
}

func (w *FileWatcher) runPolling(ctx context.Context) error {
	prev := statFile(w.path)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			cur := statFile(w.path)
			if op, changed := compareStat(prev, cur); changed {
				w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
			}
			prev = cur
		}
	}
}

func compareStat(prev, cur fileStat) (Operation, bool) {
	switch {
	case !prev.exists && cur.exists:
		return OpCreate, true
	case prev.exists && !cur.exists:
		return OpDelete, true
	case cur.exists && (prev.size != cur.size || !prev.modTime.Equal(cur.modTime)):
		return OpModify, true
	default:
		return 0, false
	}
}

// Stop stops watching and closes Events. Safe to call more than once.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
