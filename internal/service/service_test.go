package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/content"
	"github.com/Aman-CERP/markrag/internal/embed"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/index"
	"github.com/Aman-CERP/markrag/internal/logging"
	"github.com/Aman-CERP/markrag/internal/rag"
	"github.com/Aman-CERP/markrag/internal/scheduler"
	"github.com/Aman-CERP/markrag/internal/store"
	"github.com/Aman-CERP/markrag/internal/telemetry"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *fakeRecorder) Record(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *fakeRecorder) Events() []telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.Event(nil), r.events...)
}

// flakyEmbedder fails every call while fail is set.
type flakyEmbedder struct {
	embed.Embedder
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("embedding worker unavailable")
	}
	return f.Embedder.Embed(ctx, text)
}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	pages   map[string]string
	release chan struct{}
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string) string {
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ""
		}
	}
	return g.pages[url]
}

func sampleTree() []bookmarks.Node {
	return []bookmarks.Node{{
		ID:    "1",
		Title: "Bar",
		Children: []bookmarks.Node{
			{ID: "10", Title: "Rust Book", URL: "https://doc.rust-lang.org/book/"},
			{ID: "11", Title: "Go Tour", URL: "https://go.dev/tour/"},
			{ID: "12", Title: "Python docs", URL: "https://docs.python.org/3/"},
		},
	}}
}

type fixture struct {
	svc     *Service
	store   *store.SQLiteStore
	sched   *scheduler.Scheduler
	query    *flakyEmbedder
	fetcher  *gatedFetcher
	recorder *fakeRecorder
}

func newFixture(t *testing.T, contentEnabled bool) *fixture {
	t.Helper()
	logger := logging.Discard()

	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	shared := embed.NewSharedWithFactory(func(context.Context) (embed.Embedder, error) {
		return embed.NewStaticEmbedder(64), nil
	}, 16)
	t.Cleanup(func() { _ = shared.Close() })

	f := &fixture{
		store:    st,
		query:    &flakyEmbedder{Embedder: shared.Query()},
		recorder: &fakeRecorder{},
		fetcher:  &gatedFetcher{pages: map[string]string{"https://doc.rust-lang.org/book/": "The Rust Programming Language"}},
	}

	pipeline, err := index.New(index.Dependencies{
		Store:    st,
		Embedder: shared.Batch(),
		Source:   &bookmarks.StaticSource{Nodes: sampleTree()},
		Fetcher:  content.FetcherFunc(f.fetcher.Fetch),
		Planner:  index.FixedPlanner{Metadata: index.BatchPlan{Size: 2}, Content: index.BatchPlan{Size: 2}},
		Logger:   logger,
	})
	require.NoError(t, err)

	f.sched = scheduler.New(pipeline, st, nil, scheduler.Options{ContentEnabled: contentEnabled, Logger: logger})
	t.Cleanup(func() { _ = f.sched.Close() })

	cfg := config.NewConfig()
	f.svc, err = New(Dependencies{
		Store:         st,
		Scheduler:     f.sched,
		QueryEmbedder: f.query,
		Generator:     rag.NewGenerator(rag.WithLogger(logger)),
		Search:        cfg.Search,
		Settings:      rag.SettingsFromConfig(cfg),
		ModelName:     shared.ModelName,
		Recorder:      f.recorder,
		Logger:        logger,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) index(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.svc.Reindex(ctx, ReindexRequest{Wait: true})
	require.NoError(t, err)
}

func TestSearch_EmptyQuery(t *testing.T) {
	// Given an indexed collection
	f := newFixture(t, false)
	f.index(t)

	// When the query is blank
	resp, err := f.svc.Search(context.Background(), SearchRequest{Query: "   ", Offset: -4})

	// Then no results are returned and no embedding is computed
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.TotalCount)
	assert.Zero(t, resp.Offset)
	assert.Zero(t, resp.Limit)
	assert.False(t, resp.UsedVector)
	assert.Zero(t, f.query.calls.Load())
}

func TestSearch_BootstrapsEmptyIndex(t *testing.T) {
	// Given an index that was never built
	f := newFixture(t, false)

	// When the first search arrives
	resp, err := f.svc.Search(context.Background(), SearchRequest{Query: "rust"})

	// Then it answers immediately from the empty store
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.TotalCount)

	// And a first-search run fills the index in the background
	assert.Eventually(t, func() bool {
		n, _ := f.store.Count(context.Background())
		return n == 3 && !f.sched.Busy()
	}, 5*time.Second, 10*time.Millisecond)
	reason, err := store.MetaString(context.Background(), f.store, store.MetaLastIndexReason)
	require.NoError(t, err)
	assert.Equal(t, scheduler.ReasonFirstSearch, reason)

	resp, err = f.svc.Search(context.Background(), SearchRequest{Query: "rust"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "10", resp.Results[0].ID)
}

func TestSearch_UsesVectorWhenIdle(t *testing.T) {
	// Given an idle, indexed collection
	f := newFixture(t, false)
	f.index(t)

	// When searching
	resp, err := f.svc.Search(context.Background(), SearchRequest{Query: "rust book"})

	// Then the query is embedded and the exact match ranks first
	require.NoError(t, err)
	assert.True(t, resp.UsedVector)
	assert.False(t, resp.Indexing)
	assert.Equal(t, 3, resp.TotalCount)
	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, "10", top.ID)
	assert.Equal(t, "Rust Book", top.Title)
	assert.Equal(t, "/Bar", top.FolderPath)
	assert.InDelta(t, 1.0, top.LexicalScore, 1e-9)
	assert.Greater(t, top.VectorScore, 0.0)
}

func TestSearch_EmbeddingFailureFallsBackToLexical(t *testing.T) {
	// Given a query embedder that fails
	f := newFixture(t, false)
	f.index(t)
	f.query.fail.Store(true)

	// When searching
	resp, err := f.svc.Search(context.Background(), SearchRequest{Query: "go tour"})

	// Then ranking is lexical only
	require.NoError(t, err)
	assert.False(t, resp.UsedVector)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "11", resp.Results[0].ID)
	for _, r := range resp.Results {
		assert.InDelta(t, r.LexicalScore, r.Score, 1e-9)
	}
}

func TestSearch_SkipsEmbeddingWhileIndexing(t *testing.T) {
	// Given a content pass that is blocked in flight
	f := newFixture(t, true)
	f.fetcher.release = make(chan struct{})
	ctx := context.Background()
	require.NoError(t, f.sched.TriggerMetadata(scheduler.ReasonManual).Wait(ctx))
	require.True(t, f.sched.Busy())
	calls := f.query.calls.Load()

	// When searching
	resp, err := f.svc.Search(ctx, SearchRequest{Query: "python"})

	// Then no query embedding is computed and the flags report indexing
	require.NoError(t, err)
	assert.False(t, resp.UsedVector)
	assert.True(t, resp.ContentIndexing)
	assert.False(t, resp.Indexing)
	assert.Equal(t, calls, f.query.calls.Load())
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "12", resp.Results[0].ID)

	close(f.fetcher.release)
	require.NoError(t, f.sched.ContentInFlight().Wait(ctx))
}

func TestSearch_Paging(t *testing.T) {
	f := newFixture(t, false)
	f.index(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		req       SearchRequest
		wantLen   int
		wantLimit int
	}{
		{"default page size", SearchRequest{Query: "https"}, 3, 12},
		{"second page", SearchRequest{Query: "https", Offset: 1, Limit: 1}, 1, 1},
		{"limit clamped to max", SearchRequest{Query: "https", Limit: 500}, 3, 100},
		{"negative limit clamped to one", SearchRequest{Query: "https", Limit: -3}, 1, 1},
		{"offset past end", SearchRequest{Query: "https", Offset: 10}, 0, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.Search(ctx, tt.req)
			require.NoError(t, err)
			assert.Len(t, resp.Results, tt.wantLen)
			assert.Equal(t, tt.wantLimit, resp.Limit)
			assert.Equal(t, 3, resp.TotalCount)
		})
	}
}

func TestSearch_PageMatchesSliceOfFullRanking(t *testing.T) {
	f := newFixture(t, false)
	f.index(t)
	ctx := context.Background()

	full, err := f.svc.Search(ctx, SearchRequest{Query: "docs tour book", Limit: 100})
	require.NoError(t, err)
	page, err := f.svc.Search(ctx, SearchRequest{Query: "docs tour book", Offset: 1, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, full.Results[1:3], page.Results)
}

func TestAsk(t *testing.T) {
	f := newFixture(t, false)
	f.index(t)
	ctx := context.Background()

	t.Run("blank query", func(t *testing.T) {
		resp, err := f.svc.Ask(ctx, AskRequest{Query: ""})
		require.NoError(t, err)
		assert.Equal(t, EmptyAskAnswer, resp.Answer)
		assert.NotNil(t, resp.Sources)
		assert.Empty(t, resp.Sources)
	})

	t.Run("local fallback without credential", func(t *testing.T) {
		resp, err := f.svc.Ask(ctx, AskRequest{Query: "rust"})
		require.NoError(t, err)
		assert.Equal(t, rag.ModeLocalFallback, resp.Mode)
		assert.Contains(t, resp.Answer, `Top bookmark matches for "rust":`)
		assert.Contains(t, resp.Context, "[1] Rust Book")
		require.Len(t, resp.Sources, 3)
		assert.Equal(t, 1, resp.Sources[0].Rank)
		assert.Equal(t, "https://doc.rust-lang.org/book/", resp.Sources[0].URL)
		assert.Equal(t, 3, resp.Sources[2].Rank)
	})
}

func TestReindexAndStatus(t *testing.T) {
	// Given content indexing enabled
	f := newFixture(t, true)
	ctx := context.Background()

	// When reindexing and waiting
	resp, err := f.svc.Reindex(ctx, ReindexRequest{Wait: true})
	require.NoError(t, err)
	assert.True(t, resp.Started)

	// Then status merges the finished runs with persisted meta
	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.False(t, status.ContentRunning)
	assert.Equal(t, 3, status.TotalDocs)
	assert.Equal(t, 3, status.StoredDocs)
	assert.Equal(t, scheduler.ReasonManual, status.LastIndexReason)
	assert.Equal(t, "meta-manual", status.LastContentIndexReason)
	assert.Equal(t, 3, status.ContentIndexedDocCount)
	assert.NotNil(t, status.LastIndexedAt)
	assert.NotNil(t, status.ContentLastIndexedAt)
	assert.Empty(t, status.LastError)
	assert.InDelta(t, 100.0, status.ProgressPct, 1e-9)
	assert.Equal(t, "static", status.EmbeddingModel)

	doc, err := f.store.Get(ctx, "10")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "The Rust Programming Language", doc.ContentText)
}

func TestReindex_NoWaitReturnsImmediately(t *testing.T) {
	f := newFixture(t, false)

	resp, err := f.svc.Reindex(context.Background(), ReindexRequest{})

	require.NoError(t, err)
	assert.True(t, resp.Started)
	assert.Eventually(t, func() bool {
		n, _ := f.store.Count(context.Background())
		return n == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReindex_ContentOnly(t *testing.T) {
	// Given a collection indexed without content
	f := newFixture(t, false)
	f.index(t)
	ctx := context.Background()
	doc, _ := f.store.Get(ctx, "10")
	require.Empty(t, doc.ContentText)

	// When only the content pass is requested
	_, err := f.svc.Reindex(ctx, ReindexRequest{Wait: true, ContentOnly: true})
	require.NoError(t, err)

	// Then page text is fetched without a new metadata run
	doc, _ = f.store.Get(ctx, "10")
	assert.Equal(t, "The Rust Programming Language", doc.ContentText)
	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.ReasonManual, status.LastContentIndexReason)
	assert.Equal(t, 3, status.ContentIndexedDocCount)
}

func TestStatus_WhileRunning(t *testing.T) {
	// Given a content pass blocked in flight
	f := newFixture(t, true)
	f.fetcher.release = make(chan struct{})
	ctx := context.Background()
	require.NoError(t, f.sched.TriggerMetadata(scheduler.ReasonManual).Wait(ctx))

	// When status is requested
	var status *StatusResponse
	require.Eventually(t, func() bool {
		var err error
		status, err = f.svc.Status(ctx)
		return err == nil && status.ContentProgressTotal == 3
	}, 5*time.Second, 10*time.Millisecond)

	// Then the live reason and progress of the running pass are reported
	assert.True(t, status.ContentRunning)
	assert.Equal(t, "meta-manual", status.LastContentIndexReason)
	assert.Zero(t, status.ContentProgressDone)

	close(f.fetcher.release)
	require.NoError(t, f.sched.ContentInFlight().Wait(ctx))
}

func TestHandle(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	t.Run("dispatches by variant", func(t *testing.T) {
		out, err := f.svc.Handle(ctx, StatusRequest{})
		require.NoError(t, err)
		assert.IsType(t, &StatusResponse{}, out)

		out, err = f.svc.Handle(ctx, AskRequest{})
		require.NoError(t, err)
		assert.Equal(t, EmptyAskAnswer, out.(*AskResponse).Answer)

		out, err = f.svc.Handle(ctx, SearchRequest{})
		require.NoError(t, err)
		assert.IsType(t, &SearchResponse{}, out)
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := f.svc.Handle(ctx, nil)
		require.Error(t, err)
		assert.Equal(t, merrors.ErrCodeInvalidRequest, merrors.GetCode(err))
	})
}

func TestRecorder_ReceivesAnsweredQueries(t *testing.T) {
	// Given an indexed collection
	f := newFixture(t, false)
	f.index(t)

	// When a blank search, a hybrid search and a keyword-only ask run
	_, err := f.svc.Search(context.Background(), SearchRequest{Query: "  "})
	require.NoError(t, err)
	_, err = f.svc.Search(context.Background(), SearchRequest{Query: "rust book"})
	require.NoError(t, err)
	f.query.fail.Store(true)
	_, err = f.svc.Ask(context.Background(), AskRequest{Query: "zzzz qqqq"})
	require.NoError(t, err)

	// Then only the answered queries are recorded
	events := f.recorder.Events()
	require.Len(t, events, 2)

	assert.Equal(t, telemetry.KindSearch, events[0].Kind)
	assert.Equal(t, telemetry.RankingHybrid, events[0].Ranking)
	assert.Equal(t, "rust book", events[0].Query)
	assert.GreaterOrEqual(t, events[0].ResultCount, 1)
	assert.False(t, events[0].Timestamp.IsZero())

	assert.Equal(t, telemetry.KindAsk, events[1].Kind)
	assert.Equal(t, telemetry.RankingKeyword, events[1].Ranking)
	assert.Zero(t, events[1].ResultCount)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}
