// Package scheduler coordinates the two indexing passes.
//
// Each pass is single-flight: a trigger that arrives while the pass is
// running returns the in-flight Future instead of starting a second run.
// Content triggers that arrive while a run is in flight are coalesced into
// one followup run carrying the most recent reason. A successful metadata
// run chains a content run with the reason "meta-<reason>".
//
// The passes never overlap. A metadata trigger that arrives during a
// content run is deferred until that run ends, and a queued content run
// only starts after the current metadata run succeeds. When metadata
// fails the queued content run is dropped and its waiters get the error.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/index"
	"github.com/Aman-CERP/markrag/internal/store"
)

// Trigger reasons recorded in meta and logs.
const (
	ReasonStartup     = "startup"
	ReasonFirstSearch = "first-search"
	ReasonManual      = "manual"
	ReasonPeriodic    = "periodic"

	// ContentReasonPrefix prefixes the reason of a content run chained
	// from a metadata run.
	ContentReasonPrefix = "meta-"
)

// Runner executes indexing passes. *index.Pipeline implements it.
type Runner interface {
	RunMetadata(ctx context.Context, reason string, onProgress index.ProgressFunc) (index.MetadataResult, error)
	RunContent(ctx context.Context, reason string, onProgress index.ProgressFunc) (index.ContentResult, error)
	DeleteDocument(ctx context.Context, id string) error
}

var _ Runner = (*index.Pipeline)(nil)

// ErrClosed is returned by triggers after Close.
var ErrClosed = merrors.InternalError("scheduler is closed", nil)

// Options configures a Scheduler.
type Options struct {
	// ContentEnabled chains a content run after each successful metadata run.
	ContentEnabled bool

	// PeriodicInterval is the period of background reindexing started by
	// Start. Zero disables it.
	PeriodicInterval time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Scheduler owns the run state of both passes.
type Scheduler struct {
	runner   Runner
	store    store.Store
	sessions *Sessions
	opts     Options
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	meta          passState
	content       passState
	metaFlight    *Future
	contentFlight *Future

	// A metadata run waiting for the content run to finish. metaFlight is
	// already set so further triggers join it.
	metaDeferred   bool
	deferredReason string

	// Coalesced content followup: at most one queued run.
	hasQueued      bool
	queuedReason   string
	pendingContent *Future
}

// New creates a Scheduler. sessions may be shared with a Pacing planner.
func New(runner Runner, st store.Store, sessions *Sessions, opts Options) *Scheduler {
	if sessions == nil {
		sessions = NewSessions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:   runner,
		store:    st,
		sessions: sessions,
		opts:     opts,
		logger:   opts.Logger.With(slog.String("component", "scheduler")),
		ctx:      ctx,
		cancel:   cancel,
		meta:     newPassState(index.PassMetadata),
		content:  newPassState(index.PassContent),
	}
}

// Sessions returns the interactive session counter.
func (s *Scheduler) Sessions() *Sessions { return s.sessions }

// Connect registers an interactive session.
func (s *Scheduler) Connect() { s.sessions.Connect() }

// Disconnect unregisters an interactive session.
func (s *Scheduler) Disconnect() { s.sessions.Disconnect() }

// Interactive reports whether any interactive session is connected.
func (s *Scheduler) Interactive() bool { return s.sessions.Interactive() }

// TriggerMetadata starts a metadata run, or returns the in-flight one.
func (s *Scheduler) TriggerMetadata(reason string) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return completedFuture(ErrClosed)
	}
	if s.metaFlight != nil {
		s.logger.Debug("metadata_trigger_coalesced", slog.String("reason", reason))
		return s.metaFlight
	}

	f := newFuture()
	s.metaFlight = f
	if s.contentFlight != nil {
		s.metaDeferred = true
		s.deferredReason = reason
		s.logger.Debug("metadata_run_deferred", slog.String("reason", reason))
		return f
	}
	s.startMetadataLocked(reason, f)
	return f
}

func (s *Scheduler) startMetadataLocked(reason string, f *Future) {
	s.meta.start(reason, s.opts.Now())
	s.wg.Add(1)
	go s.runMetadata(reason, f)
}

// TriggerContent starts a content run.
//
// While a content run is in flight the reason is queued for one followup
// run and the in-flight Future is returned. While a metadata run is in
// flight the content run is deferred until metadata finishes and the
// returned Future tracks that deferred run.
func (s *Scheduler) TriggerContent(reason string) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return completedFuture(ErrClosed)
	}
	if s.contentFlight != nil {
		s.queueContentLocked(reason)
		return s.contentFlight
	}
	if s.metaFlight != nil {
		return s.queueContentLocked(reason)
	}
	return s.startContentLocked(reason)
}

// queueContentLocked records reason as the single followup content run and
// returns the Future of that followup.
func (s *Scheduler) queueContentLocked(reason string) *Future {
	s.hasQueued = true
	s.queuedReason = reason
	if s.pendingContent == nil {
		s.pendingContent = newFuture()
	}
	s.logger.Debug("content_run_queued", slog.String("reason", reason))
	return s.pendingContent
}

func (s *Scheduler) startContentLocked(reason string) *Future {
	f := s.pendingContent
	if f == nil {
		f = newFuture()
	}
	s.clearQueueLocked()

	s.contentFlight = f
	s.content.start(reason, s.opts.Now())
	s.wg.Add(1)
	go s.runContent(reason, f)
	return f
}

func (s *Scheduler) runMetadata(reason string, f *Future) {
	defer s.wg.Done()

	_, err := s.runner.RunMetadata(s.ctx, reason, func(done, total int) {
		s.mu.Lock()
		s.meta.progress(done, total)
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.meta.finish(err, s.opts.Now())
	s.metaFlight = nil

	var (
		next    string
		chain   bool
		dropped *Future
	)
	switch {
	case s.closed:
	case err != nil:
		if s.hasQueued {
			s.logger.Debug("content_run_dropped", slog.String("reason", s.queuedReason))
			dropped = s.pendingContent
			s.clearQueueLocked()
		}
	case s.opts.ContentEnabled:
		next, chain = ContentReasonPrefix+reason, true
	case s.hasQueued:
		next, chain = s.queuedReason, true
	}
	if chain {
		s.startContentLocked(next)
	}
	s.mu.Unlock()

	if dropped != nil {
		dropped.resolve(err)
	}
	f.resolve(err)
}

func (s *Scheduler) clearQueueLocked() {
	s.pendingContent = nil
	s.hasQueued = false
	s.queuedReason = ""
}

func (s *Scheduler) runContent(reason string, f *Future) {
	defer s.wg.Done()

	_, err := s.runner.RunContent(s.ctx, reason, func(done, total int) {
		s.mu.Lock()
		s.content.progress(done, total)
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.content.finish(err, s.opts.Now())
	s.contentFlight = nil
	switch {
	case s.closed:
	case s.metaDeferred:
		// Metadata goes first; the queued content run waits for its result.
		s.metaDeferred = false
		s.startMetadataLocked(s.deferredReason, s.metaFlight)
		s.deferredReason = ""
	case s.hasQueued && s.metaFlight == nil:
		s.startContentLocked(s.queuedReason)
	}
	s.mu.Unlock()

	f.resolve(err)
}

// Busy reports whether either pass is running or a deferred metadata run
// is waiting to start.
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metaFlight != nil || s.contentFlight != nil
}

// ContentInFlight returns the Future of the running or queued content run,
// or nil when there is none.
func (s *Scheduler) ContentInFlight() *Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingContent != nil {
		return s.pendingContent
	}
	return s.contentFlight
}

// Snapshot returns the current state of both passes.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Metadata: s.meta.state,
		Content:  s.content.state,
		Sessions: s.sessions.Count(),
	}
	if s.hasQueued {
		snap.QueuedContentReason = s.queuedReason
	}
	if s.metaDeferred {
		snap.DeferredMetadataReason = s.deferredReason
	}
	return snap
}

// Background triggers a metadata run and logs its failure instead of
// returning it.
func (s *Scheduler) Background(reason string) {
	s.watch(reason, s.TriggerMetadata(reason))
}

// BackgroundContent triggers a content run and logs its failure instead of
// returning it.
func (s *Scheduler) BackgroundContent(reason string) {
	s.watch(reason, s.TriggerContent(reason))
}

func (s *Scheduler) watch(reason string, f *Future) {
	go func() {
		if err := f.Wait(s.ctx); err != nil && s.ctx.Err() == nil {
			attrs := []any{slog.String("reason", reason)}
			for _, a := range merrors.LogAttrs(err) {
				attrs = append(attrs, a)
			}
			s.logger.Warn("reindex_failed", attrs...)
		}
	}()
}

// EnsureIndexed starts a background metadata run with reason
// "first-search" when no metadata run has ever completed and none is in
// flight. It reports whether a run was started. It never blocks on the run.
func (s *Scheduler) EnsureIndexed(ctx context.Context) bool {
	if s.Busy() {
		return false
	}
	total, ok, err := store.MetaInt(ctx, s.store, store.MetaTotalDocs)
	if err != nil {
		s.logger.Warn("bootstrap_check_failed", slog.String("error", err.Error()))
		return false
	}
	if ok && total > 0 {
		return false
	}
	s.Background(ReasonFirstSearch)
	return true
}

// HandleBookmarkEvent reacts to a bookmark change. A removal deletes the
// document right away; every event then triggers a background metadata run.
func (s *Scheduler) HandleBookmarkEvent(ctx context.Context, ev bookmarks.Event) error {
	var deleteErr error
	if ev.Kind == bookmarks.EventRemoved && ev.ID != "" {
		if err := s.runner.DeleteDocument(ctx, ev.ID); err != nil {
			s.logger.Warn("bookmark_delete_failed",
				slog.String("id", ev.ID),
				slog.String("error", err.Error()))
			deleteErr = err
		}
	}
	s.Background(ev.Reason())
	return deleteErr
}

// Start triggers a "startup" run and, when configured, periodic runs until
// ctx is done or the scheduler is closed.
func (s *Scheduler) Start(ctx context.Context) {
	s.Background(ReasonStartup)

	if s.opts.PeriodicInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.PeriodicInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Background(ReasonPeriodic)
			}
		}
	}()
}

// Close cancels in-flight runs and waits for them to return.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pendingContent
	s.clearQueueLocked()
	var deferred *Future
	if s.metaDeferred {
		deferred = s.metaFlight
		s.metaFlight = nil
		s.metaDeferred = false
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	for _, f := range []*Future{pending, deferred} {
		if f != nil {
			f.resolve(ErrClosed)
		}
	}
	return nil
}
