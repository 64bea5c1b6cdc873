// Package service answers search, ask, reindex and status requests over
// the bookmark index. It is the single entry point used by the daemon,
// the MCP server and the in-process CLI.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/embed"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/rag"
	"github.com/Aman-CERP/markrag/internal/scheduler"
	"github.com/Aman-CERP/markrag/internal/search"
	"github.com/Aman-CERP/markrag/internal/store"
	"github.com/Aman-CERP/markrag/internal/telemetry"
)

// EmptyAskAnswer is the answer to an ask with a blank query.
const EmptyAskAnswer = "Enter a query first."

// Dependencies contains the collaborators of a Service.
type Dependencies struct {
	Store     store.Store
	Scheduler *scheduler.Scheduler

	// QueryEmbedder embeds query text. It must share its concurrency gate
	// with the pipeline's embedder.
	QueryEmbedder embed.Embedder
	Generator     *rag.Generator

	Search   config.SearchConfig
	Settings rag.Settings

	// ModelName reports the active embedding model for status. Optional.
	ModelName func() string

	// Recorder receives one event per answered search or ask. Optional.
	Recorder Recorder

	Logger *slog.Logger
}

// Recorder collects query statistics.
type Recorder interface {
	Record(telemetry.Event)
}

// Service handles requests against one index.
type Service struct {
	store     store.Store
	sched     *scheduler.Scheduler
	query     embed.Embedder
	generator *rag.Generator
	search    config.SearchConfig
	settings  rag.Settings
	modelName func() string
	recorder  Recorder
	logger    *slog.Logger

	// closers run in order on Close; set by Open.
	closers []func() error
}

// New creates a Service from explicit dependencies.
func New(deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if deps.QueryEmbedder == nil {
		return nil, fmt.Errorf("query embedder is required")
	}
	s := &Service{
		store:     deps.Store,
		sched:     deps.Scheduler,
		query:     deps.QueryEmbedder,
		generator: deps.Generator,
		search:    deps.Search,
		settings:  deps.Settings,
		modelName: deps.ModelName,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
	}
	if s.generator == nil {
		s.generator = rag.NewGenerator()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	defaults := config.NewConfig().Search
	if s.search.PageSize <= 0 {
		s.search.PageSize = defaults.PageSize
	}
	if s.search.MaxPageSize <= 0 {
		s.search.MaxPageSize = defaults.MaxPageSize
	}
	return s, nil
}

// Scheduler returns the scheduler that drives indexing.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.sched }

// Store returns the document store.
func (s *Service) Store() store.Store { return s.store }

// Handle dispatches req to its handler and returns the typed response.
func (s *Service) Handle(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case SearchRequest:
		return s.Search(ctx, r)
	case AskRequest:
		return s.Ask(ctx, r)
	case ReindexRequest:
		return s.Reindex(ctx, r)
	case StatusRequest:
		return s.Status(ctx)
	case nil:
		return nil, merrors.New(merrors.ErrCodeInvalidRequest, "request is nil", nil)
	default:
		return nil, merrors.New(merrors.ErrCodeInvalidRequest,
			fmt.Sprintf("unsupported request type %q", req.Type()), nil)
	}
}

// Search ranks stored bookmarks against the query.
//
// A blank query returns no results. The first search against an empty
// index starts a background metadata pass and answers with what is stored.
// While either pass is running no query embedding is computed and ranking
// is lexical only; an embedding failure degrades the same way.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	offset := max(0, req.Offset)

	if query == "" {
		limit := 0
		if req.Limit != 0 {
			limit = s.clampLimit(req.Limit)
		}
		return s.emptySearch(offset, limit), nil
	}

	start := time.Now()
	limit := s.clampLimit(req.Limit)
	ranked, usedVector, err := s.rank(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	s.record(telemetry.KindSearch, query, ranked.Matched, usedVector, start)

	resp := s.emptySearch(offset, limit)
	resp.TotalCount = ranked.TotalCount
	resp.UsedVector = usedVector
	for _, r := range ranked.Results {
		resp.Results = append(resp.Results, SearchResult{
			ID:           r.Document.ID,
			Title:        r.Document.Title,
			URL:          r.Document.URL,
			FolderPath:   r.Document.FolderPath,
			Score:        r.Score,
			VectorScore:  r.VectorScore,
			LexicalScore: r.LexicalScore,
		})
	}
	return resp, nil
}

func (s *Service) record(kind telemetry.Kind, query string, matched int, usedVector bool, start time.Time) {
	if s.recorder == nil {
		return
	}
	ranking := telemetry.RankingKeyword
	if usedVector {
		ranking = telemetry.RankingHybrid
	}
	s.recorder.Record(telemetry.Event{
		Query:       query,
		Kind:        kind,
		Ranking:     ranking,
		ResultCount: matched,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

func (s *Service) clampLimit(limit int) int {
	if limit == 0 {
		return s.search.PageSize
	}
	return min(s.search.MaxPageSize, max(1, limit))
}

func (s *Service) emptySearch(offset, limit int) *SearchResponse {
	snap := s.sched.Snapshot()
	return &SearchResponse{
		Results:         []SearchResult{},
		Offset:          offset,
		Limit:           limit,
		Indexing:        snap.Metadata.Running(),
		ContentIndexing: snap.Content.Running(),
	}
}

// rank runs bootstrap, loads documents and ranks them. limit <= 0 returns
// every result from offset on.
func (s *Service) rank(ctx context.Context, query string, offset, limit int) (search.Ranked, bool, error) {
	s.sched.EnsureIndexed(ctx)

	docs, err := s.store.All(ctx)
	if err != nil {
		return search.Ranked{}, false, err
	}
	if len(docs) == 0 {
		return search.Ranked{Results: []search.Result{}}, false, nil
	}

	weight := s.settings.VectorWeight
	var queryVec []float32
	if s.sched.Busy() {
		weight = 0
	} else {
		queryVec, err = s.query.Embed(ctx, query)
		if err != nil {
			s.logger.Debug("query_embedding_failed", slog.String("error", err.Error()))
			queryVec = nil
			weight = 0
		}
	}

	ranked := search.Rank(search.Query{
		Text:         query,
		Embedding:    queryVec,
		VectorWeight: weight,
		Offset:       offset,
		Limit:        limit,
	}, docs)
	return ranked, queryVec != nil && weight > 0, nil
}

// Ask retrieves the top matches for the query and generates an answer.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return &AskResponse{Answer: EmptyAskAnswer, Sources: []Source{}}, nil
	}

	start := time.Now()
	topK := max(1, s.settings.TopK)
	ranked, usedVector, err := s.rank(ctx, query, 0, topK)
	if err != nil {
		return nil, err
	}
	s.record(telemetry.KindAsk, query, ranked.Matched, usedVector, start)

	answer := s.generator.Answer(ctx, query, ranked.Results, s.settings)
	snap := s.sched.Snapshot()
	resp := &AskResponse{
		Answer:          answer.Answer,
		Mode:            answer.Mode,
		Context:         answer.Context,
		LLMError:        answer.Error,
		Sources:         make([]Source, len(ranked.Results)),
		Indexing:        snap.Metadata.Running(),
		ContentIndexing: snap.Content.Running(),
		UsedVector:      usedVector,
	}
	for i, r := range ranked.Results {
		resp.Sources[i] = Source{
			Rank:       i + 1,
			Title:      r.Document.Title,
			URL:        r.Document.URL,
			Score:      r.Score,
			FolderPath: r.Document.FolderPath,
		}
	}
	return resp, nil
}

// Reindex starts a manual metadata pass. Without Wait, failures are only
// logged. With Wait, it blocks until the metadata pass and the content pass
// it chains have finished and returns the first error. ContentOnly starts
// a content pass instead.
func (s *Service) Reindex(ctx context.Context, req ReindexRequest) (*ReindexResponse, error) {
	if !req.Wait {
		if req.ContentOnly {
			s.sched.BackgroundContent(scheduler.ReasonManual)
		} else {
			s.sched.Background(scheduler.ReasonManual)
		}
		return &ReindexResponse{Started: true}, nil
	}

	first := s.sched.TriggerMetadata
	if req.ContentOnly {
		first = s.sched.TriggerContent
	}
	if err := first(scheduler.ReasonManual).Wait(ctx); err != nil {
		return &ReindexResponse{Started: true}, err
	}
	if f := s.sched.ContentInFlight(); f != nil {
		if err := f.Wait(ctx); err != nil {
			return &ReindexResponse{Started: true}, err
		}
	}
	return &ReindexResponse{Started: true}, nil
}

// Status merges the live run state with persisted meta. While a pass runs
// its progress total and current reason take precedence over stored values.
func (s *Service) Status(ctx context.Context) (*StatusResponse, error) {
	snap := s.sched.Snapshot()
	meta, content := snap.Metadata, snap.Content

	m, err := s.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		Running:       meta.Running(),
		ProgressDone:  meta.Done,
		ProgressTotal: meta.Total,
		ProgressPct:   meta.Percent(),
		LastIndexedAt: m.lastIndexedAt,
		TotalDocs:     m.totalDocs,
		LastError:     firstNonEmpty(meta.LastError, m.lastError),

		ContentRunning:         content.Running(),
		ContentProgressDone:    content.Done,
		ContentProgressTotal:   content.Total,
		ContentProgressPct:     content.Percent(),
		ContentLastIndexedAt:   m.contentLastIndexedAt,
		ContentLastError:       firstNonEmpty(content.LastError, m.contentLastError),
		ContentIndexedDocCount: m.contentIndexedDocCount,
		QueuedContentReason:    snap.QueuedContentReason,

		StoredDocs:          stored,
		InteractiveSessions: snap.Sessions,
	}

	resp.LastIndexReason = m.lastIndexReason
	if meta.Running() {
		resp.TotalDocs = meta.Total
		resp.LastIndexReason = meta.Reason
		resp.LastError = ""
	}
	resp.LastContentIndexReason = m.lastContentIndexReason
	if content.Running() {
		resp.LastContentIndexReason = content.Reason
		resp.ContentLastError = ""
	}
	if s.modelName != nil {
		resp.EmbeddingModel = s.modelName()
	}
	return resp, nil
}

type persistedMeta struct {
	lastIndexedAt          *time.Time
	totalDocs              int
	lastError              string
	lastIndexReason        string
	contentLastIndexedAt   *time.Time
	contentLastError       string
	lastContentIndexReason string
	contentIndexedDocCount int
}

func (s *Service) readMeta(ctx context.Context) (persistedMeta, error) {
	var m persistedMeta
	var err error
	if m.lastIndexedAt, err = store.MetaTime(ctx, s.store, store.MetaLastIndexedAt); err != nil {
		return m, err
	}
	if m.totalDocs, _, err = store.MetaInt(ctx, s.store, store.MetaTotalDocs); err != nil {
		return m, err
	}
	if m.lastError, err = store.MetaString(ctx, s.store, store.MetaLastError); err != nil {
		return m, err
	}
	if m.lastIndexReason, err = store.MetaString(ctx, s.store, store.MetaLastIndexReason); err != nil {
		return m, err
	}
	if m.contentLastIndexedAt, err = store.MetaTime(ctx, s.store, store.MetaContentLastIndexedAt); err != nil {
		return m, err
	}
	if m.contentLastError, err = store.MetaString(ctx, s.store, store.MetaContentLastError); err != nil {
		return m, err
	}
	if m.lastContentIndexReason, err = store.MetaString(ctx, s.store, store.MetaLastContentIndexReason); err != nil {
		return m, err
	}
	if m.contentIndexedDocCount, _, err = store.MetaInt(ctx, s.store, store.MetaContentIndexedDocCount); err != nil {
		return m, err
	}
	return m, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Close stops indexing and releases resources acquired by Open. A Service
// built with New owns nothing and Close is a no-op.
func (s *Service) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}
