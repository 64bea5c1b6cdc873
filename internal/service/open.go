package service

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/content"
	"github.com/Aman-CERP/markrag/internal/embed"
	"github.com/Aman-CERP/markrag/internal/index"
	"github.com/Aman-CERP/markrag/internal/rag"
	"github.com/Aman-CERP/markrag/internal/scheduler"
	"github.com/Aman-CERP/markrag/internal/store"
	"github.com/Aman-CERP/markrag/internal/telemetry"
)

// Runtime is a fully wired Service together with the parts a host process
// needs to drive it.
type Runtime struct {
	*Service

	Config        *config.Config
	Embedder      *embed.Shared
	Pipeline      *index.Pipeline
	BookmarksPath string
}

// Open wires the store, embedder, pipeline, scheduler and generator from
// cfg. Indexing does not start until Start is called, except for the
// bootstrap run triggered by the first search.
func Open(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	bookmarksPath, err := bookmarks.ResolvePath(cfg.Bookmarks.Path)
	if err != nil {
		// Search over the existing index still works; indexing will
		// record the error.
		logger.Warn("bookmarks_file_not_found", slog.String("error", err.Error()))
	}

	shared := embed.NewShared(cfg.Embeddings)
	sessions := scheduler.NewSessions()

	pipeline, err := index.New(index.Dependencies{
		Store:    st,
		Embedder: shared.Batch(),
		Source:   bookmarks.NewChromeSource(bookmarksPath),
		Fetcher:  content.NewHTTPFetcher(cfg.Indexing, content.WithLogger(logger)),
		Planner:  scheduler.NewPacing(cfg.Indexing, sessions),
		Logger:   logger.With(slog.String("component", "index")),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sched := scheduler.New(pipeline, st, sessions, scheduler.Options{
		ContentEnabled:   cfg.Indexing.ContentEnabled,
		PeriodicInterval: cfg.Indexing.PeriodicInterval,
		Logger:           logger,
	})

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		ms, err := telemetry.NewSQLiteStore(st.DB())
		if err != nil {
			logger.Warn("telemetry_unavailable", slog.String("error", err.Error()))
		} else {
			metrics = telemetry.NewMetrics(ms, telemetry.Config{
				FlushInterval: cfg.Telemetry.FlushInterval,
				Logger:        logger,
			})
		}
	}

	deps := Dependencies{
		Store:         st,
		Scheduler:     sched,
		QueryEmbedder: shared.Query(),
		Generator:     rag.NewGenerator(rag.WithLogger(logger)),
		Search:        cfg.Search,
		Settings:      rag.SettingsFromConfig(cfg),
		ModelName:     shared.ModelName,
		Logger:        logger,
	}
	closers := []func() error{sched.Close, shared.Close}
	if metrics != nil {
		deps.Recorder = metrics
		closers = append(closers, metrics.Close)
	}

	svc, err := New(deps)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		_ = st.Close()
		return nil, err
	}
	svc.closers = append(closers, st.Close)

	return &Runtime{
		Service:       svc,
		Config:        cfg,
		Embedder:      shared,
		Pipeline:      pipeline,
		BookmarksPath: bookmarksPath,
	}, nil
}

// Start warms the embedder in the background and starts the scheduler's
// startup and periodic runs.
func (r *Runtime) Start(ctx context.Context) {
	go func() {
		if err := r.Embedder.Warm(ctx); err != nil {
			r.logger.Warn("embedder_warmup_failed", slog.String("error", err.Error()))
		}
	}()
	r.sched.Start(ctx)
}
