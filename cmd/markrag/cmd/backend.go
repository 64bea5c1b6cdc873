package cmd

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/daemon"
	"github.com/Aman-CERP/markrag/internal/mcp"
	"github.com/Aman-CERP/markrag/internal/scheduler"
	"github.com/Aman-CERP/markrag/internal/service"
)

// Backend modes reported by status.
const (
	modeDaemon = "daemon"
	modeLocal  = "local"
)

// backend answers CLI and MCP requests, either through a running daemon or
// an in-process service.
type backend interface {
	mcp.Backend

	// Detail returns status with the daemon fields filled when available.
	Detail(ctx context.Context) (*daemon.StatusResult, error)
	// Mode is modeDaemon or modeLocal.
	Mode() string
	Close() error
}

// openBackend prefers a running daemon and otherwise opens the store
// in-process.
func openBackend(cfg *config.Config, logger *slog.Logger) (backend, error) {
	client := daemon.NewClient(daemon.ConfigFrom(cfg.Daemon))
	if client.IsRunning() {
		logger.Debug("backend_daemon", slog.String("socket", cfg.Daemon.SocketPath))
		return &daemonBackend{client: client}, nil
	}

	rt, err := service.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("backend_local", slog.String("store", cfg.Store.Path))
	return &localBackend{rt: rt}, nil
}

type daemonBackend struct {
	client *daemon.Client
}

func (b *daemonBackend) Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error) {
	return b.client.Search(ctx, req)
}

func (b *daemonBackend) Ask(ctx context.Context, req service.AskRequest) (*service.AskResponse, error) {
	return b.client.Ask(ctx, req)
}

func (b *daemonBackend) Reindex(ctx context.Context, req service.ReindexRequest) (*service.ReindexResponse, error) {
	return b.client.Reindex(ctx, req)
}

func (b *daemonBackend) Status(ctx context.Context) (*service.StatusResponse, error) {
	res, err := b.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &res.StatusResponse, nil
}

func (b *daemonBackend) Detail(ctx context.Context) (*daemon.StatusResult, error) {
	return b.client.Status(ctx)
}

func (b *daemonBackend) Mode() string { return modeDaemon }

func (b *daemonBackend) Close() error { return nil }

// localBackend runs the service in this process. A search against an
// empty store waits for the first metadata pass, since the process may
// exit before a background run would finish.
type localBackend struct {
	rt *service.Runtime
}

func (b *localBackend) Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error) {
	if err := b.ensureIndexed(ctx); err != nil {
		return nil, err
	}
	return b.rt.Search(ctx, req)
}

func (b *localBackend) Ask(ctx context.Context, req service.AskRequest) (*service.AskResponse, error) {
	if err := b.ensureIndexed(ctx); err != nil {
		return nil, err
	}
	return b.rt.Ask(ctx, req)
}

func (b *localBackend) ensureIndexed(ctx context.Context) error {
	n, err := b.rt.Store().Count(ctx)
	if err != nil || n > 0 {
		return err
	}
	return b.rt.Scheduler().TriggerMetadata(scheduler.ReasonFirstSearch).Wait(ctx)
}

func (b *localBackend) Reindex(ctx context.Context, req service.ReindexRequest) (*service.ReindexResponse, error) {
	return b.rt.Reindex(ctx, req)
}

func (b *localBackend) Status(ctx context.Context) (*service.StatusResponse, error) {
	return b.rt.Status(ctx)
}

func (b *localBackend) Detail(ctx context.Context) (*daemon.StatusResult, error) {
	st, err := b.rt.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &daemon.StatusResult{StatusResponse: *st, BookmarksPath: b.rt.BookmarksPath}, nil
}

func (b *localBackend) Mode() string { return modeLocal }

func (b *localBackend) Close() error { return b.rt.Close() }
