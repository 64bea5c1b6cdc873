package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/service"
	"github.com/Aman-CERP/markrag/internal/watcher"
)

// Daemon is the background process: instance lock, PID file, runtime,
// bookmark watcher and socket server.
type Daemon struct {
	cfg    Config
	appCfg *config.Config
	logger *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a daemon for appCfg. Nothing is opened until Run.
func New(appCfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := ConfigFrom(appCfg.Daemon)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:    cfg,
		appCfg: appCfg,
		logger: logger.With(slog.String("component", "daemon")),
		ready:  make(chan struct{}),
	}, nil
}

// Config returns the daemon config.
func (d *Daemon) Config() Config { return d.cfg }

// Ready is closed once the socket accepts connections.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Run serves until ctx is cancelled or a client sends shutdown. It fails
// fast with ERR_203_INSTANCE_LOCKED when another daemon holds the lock.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}

	lock := NewInstanceLock(d.cfg.LockPath)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	pid := NewPIDFile(d.cfg.PIDPath)
	if err := pid.Write(); err != nil {
		return err
	}
	defer func() { _ = pid.Remove() }()

	rt, err := service.Open(d.appCfg, d.logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt.Start(ctx)
	watching := d.startWatcher(ctx, rt)

	srv := NewServer(d.cfg.SocketPath, rt.Service,
		WithSessions(rt.Scheduler().Sessions()),
		WithLogger(d.logger),
		WithShutdownFunc(cancel),
		WithStatusHook(func(r *StatusResult) {
			r.BookmarksPath = rt.BookmarksPath
			r.Watching = watching
		}),
	)
	go func() {
		select {
		case <-srv.Ready():
			d.readyOnce.Do(func() { close(d.ready) })
		case <-ctx.Done():
		}
	}()

	d.logger.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("bookmarks", rt.BookmarksPath),
		slog.Bool("watching", watching))

	serveErr := srv.ListenAndServe(ctx)
	d.close(rt)
	d.logger.Info("daemon_stopped")

	if errors.Is(serveErr, context.Canceled) {
		return nil
	}
	return serveErr
}

func (d *Daemon) startWatcher(ctx context.Context, rt *service.Runtime) bool {
	if !d.appCfg.Bookmarks.Watch || rt.BookmarksPath == "" {
		return false
	}
	w, err := watcher.NewBookmarkWatcher(
		rt.BookmarksPath,
		bookmarks.NewChromeSource(rt.BookmarksPath),
		rt.Scheduler().HandleBookmarkEvent,
		watcher.Options{DebounceWindow: d.appCfg.Bookmarks.Debounce},
		d.logger,
	)
	if err != nil {
		d.logger.Warn("bookmark_watch_failed", slog.String("error", err.Error()))
		return false
	}
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("bookmark_watch_stopped", slog.String("error", err.Error()))
		}
	}()
	return true
}

// close shuts the runtime down, giving in-flight batches the grace period.
func (d *Daemon) close(rt *service.Runtime) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rt.Close(); err != nil {
			d.logger.Warn("runtime_close_failed", slog.String("error", err.Error()))
		}
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGracePeriod):
		d.logger.Warn("shutdown_grace_exceeded", slog.Duration("grace", d.cfg.ShutdownGracePeriod))
	}
}
