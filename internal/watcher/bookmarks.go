package watcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
)

// Handler receives one bookmark change. scheduler.Scheduler.HandleBookmarkEvent
// satisfies it.
type Handler func(ctx context.Context, ev bookmarks.Event) error

// BookmarkWatcher reloads the bookmark tree when its file changes and
// delivers the difference to a Handler.
type BookmarkWatcher struct {
	files  *FileWatcher
	source bookmarks.Source
	handle Handler
	logger *slog.Logger

	mu       sync.Mutex
	snapshot []bookmarks.Node
	loaded   bool
}

// NewBookmarkWatcher watches path and reads the tree from source.
func NewBookmarkWatcher(path string, source bookmarks.Source, handle Handler, opts Options, logger *slog.Logger) (*BookmarkWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "watcher"))

	files, err := NewFileWatcher(path, opts, logger)
	if err != nil {
		return nil, err
	}
	return &BookmarkWatcher{
		files:  files,
		source: source,
		handle: handle,
		logger: logger,
	}, nil
}

// Run records the current tree as the baseline and then reloads on every
// debounced change until ctx is done.
func (w *BookmarkWatcher) Run(ctx context.Context) error {
	w.baseline(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- w.files.Start(ctx) }()

	w.logger.Info("bookmark_watch_started",
		slog.String("path", w.files.Path()),
		slog.String("mode", w.files.Mode()))

	for batch := range w.files.Events() {
		if onlyDeletes(batch) {
			// Keep the index; the browser is likely mid-rewrite.
			w.logger.Debug("bookmarks_file_removed")
			continue
		}
		if _, err := w.Reload(ctx); err != nil {
			w.logger.Warn("bookmarks_reload_failed", slog.String("error", err.Error()))
		}
	}
	return <-errCh
}

// Stop ends Run.
func (w *BookmarkWatcher) Stop() error {
	return w.files.Stop()
}

func (w *BookmarkWatcher) baseline(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded {
		return
	}
	nodes, err := w.source.Tree(ctx)
	if err != nil {
		w.logger.Warn("bookmarks_baseline_failed", slog.String("error", err.Error()))
		return
	}
	w.snapshot = nodes
	w.loaded = true
}

// Reload reads the tree, diffs it against the previous snapshot and hands
// each change to the Handler. The snapshot only advances on a successful
// read. Handler errors are logged and do not stop delivery.
func (w *BookmarkWatcher) Reload(ctx context.Context) ([]bookmarks.Event, error) {
	nodes, err := w.source.Tree(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	events := bookmarks.Diff(w.snapshot, nodes)
	w.snapshot = nodes
	w.loaded = true
	w.mu.Unlock()

	if len(events) > 0 {
		w.logger.Info("bookmarks_changed", slog.Int("events", len(events)))
	}
	for _, ev := range events {
		if err := w.handle(ctx, ev); err != nil {
			w.logger.Warn("bookmark_event_failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("id", ev.ID),
				slog.String("error", err.Error()))
		}
	}
	return events, nil
}

func onlyDeletes(batch []FileEvent) bool {
	for _, ev := range batch {
		if ev.Operation != OpDelete {
			return false
		}
	}
	return true
}
