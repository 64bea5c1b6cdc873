package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore records what Flush writes.
type memStore struct {
	mu     sync.Mutex
	counts map[Counter]int64
	terms  map[string]int64
	zero   []ZeroResult
	fail   bool
}

func newMemStore() *memStore {
	return &memStore{counts: map[Counter]int64{}, terms: map[string]int64{}}
}

func (s *memStore) AddDailyCounts(_ context.Context, counts map[Counter]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	for k, v := range counts {
		s.counts[k] += v
	}
	return nil
}

func (s *memStore) UpsertTermCounts(_ context.Context, terms map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range terms {
		s.terms[k] += v
	}
	return nil
}

func (s *memStore) AddZeroResultQueries(_ context.Context, q []ZeroResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero = append(s.zero, q...)
	return nil
}

func (s *memStore) Report(context.Context, string, string, int) (*Report, error) {
	return nil, errors.New("not implemented")
}

var day = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestCircularBuffer(t *testing.T) {
	buf := NewCircularBuffer[string](3)
	assert.Empty(t, buf.Items())

	buf.Add("q1")
	buf.Add("q2")
	assert.Equal(t, []string{"q1", "q2"}, buf.Items())

	buf.Add("q3")
	buf.Add("q4")
	buf.Add("q5")
	assert.Equal(t, []string{"q3", "q4", "q5"}, buf.Items())
	assert.Equal(t, 3, buf.Size())

	assert.Equal(t, 100, NewCircularBuffer[int](0).capacity)
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.d))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"", nil},
		{"go is fun", []string{"fun"}},
		{"Rust, rust book!", []string{"rust", "book"}},
		{"  (kubernetes)  ", []string{"kubernetes"}},
		{"日本語 ok", []string{"日本語"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestMetrics_RecordAndSnapshot(t *testing.T) {
	// Given: an in-memory collector
	m := NewMetrics(nil, Config{})
	defer func() { _ = m.Close() }()

	// When: recording a few queries
	m.Record(Event{Query: "rust book", Kind: KindSearch, Ranking: RankingHybrid, ResultCount: 3, Latency: 5 * time.Millisecond, Timestamp: day})
	m.Record(Event{Query: "Rust Book ", Kind: KindSearch, Ranking: RankingKeyword, ResultCount: 2, Latency: 20 * time.Millisecond, Timestamp: day})
	m.Record(Event{Query: "quantum yak", Kind: KindAsk, Ranking: RankingHybrid, ResultCount: 0, Latency: time.Second, Timestamp: day})

	// Then: the snapshot reflects them
	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(2), s.Kinds[KindSearch])
	assert.Equal(t, int64(1), s.Kinds[KindAsk])
	assert.Equal(t, int64(2), s.Rankings[RankingHybrid])
	assert.Equal(t, int64(1), s.Latency[BucketP1000])
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{"quantum yak"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.InDelta(t, 33.33, s.ZeroResultPercentage(), 0.01)
	require.GreaterOrEqual(t, len(s.TopTerms), 2)
	assert.Equal(t, TermCount{Term: "book", Count: 2}, s.TopTerms[0])
	assert.Equal(t, TermCount{Term: "rust", Count: 2}, s.TopTerms[1])
}

func TestMetrics_FlushWritesDeltas(t *testing.T) {
	// Given: a collector without a flush loop
	st := newMemStore()
	m := NewMetrics(st, Config{})

	m.Record(Event{Query: "golang", Kind: KindSearch, Ranking: RankingHybrid, ResultCount: 1, Timestamp: day})
	require.NoError(t, m.Flush(context.Background()))

	// When: flushing again after another query
	m.Record(Event{Query: "golang", Kind: KindSearch, Ranking: RankingKeyword, ResultCount: 0, Timestamp: day})
	require.NoError(t, m.Flush(context.Background()))
	require.NoError(t, m.Flush(context.Background()))

	// Then: counts are not double counted
	assert.Equal(t, int64(2), st.counts[Counter{"2026-03-01", DimensionKind, "search"}])
	assert.Equal(t, int64(1), st.counts[Counter{"2026-03-01", DimensionRanking, "keyword"}])
	assert.Equal(t, int64(2), st.terms["golang"])
	require.Len(t, st.zero, 1)
	assert.Equal(t, "golang", st.zero[0].Query)

	require.NoError(t, m.Close())
}

func TestMetrics_FlushFailureKeepsPending(t *testing.T) {
	st := newMemStore()
	st.fail = true
	m := NewMetrics(st, Config{})

	m.Record(Event{Query: "golang", Kind: KindAsk, Ranking: RankingHybrid, ResultCount: 1, Timestamp: day})
	require.Error(t, m.Flush(context.Background()))

	st.fail = false
	require.NoError(t, m.Close())

	assert.Equal(t, int64(1), st.counts[Counter{"2026-03-01", DimensionKind, "ask"}])
}

func TestMetrics_FlushLoopAndClose(t *testing.T) {
	// Given: a short flush interval
	st := newMemStore()
	m := NewMetrics(st, Config{FlushInterval: 10 * time.Millisecond})

	m.Record(Event{Query: "periodic", Kind: KindSearch, Ranking: RankingHybrid, ResultCount: 1, Timestamp: day})

	// Then: the loop flushes without an explicit call
	assert.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.terms["periodic"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	// When: closed
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	// Then: later records are ignored
	m.Record(Event{Query: "late", Kind: KindSearch})
	assert.Equal(t, int64(1), m.Snapshot().TotalQueries)
}

func TestMetrics_ConcurrentRecord(t *testing.T) {
	m := NewMetrics(newMemStore(), Config{})
	defer func() { _ = m.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(Event{Query: "concurrent query", Kind: KindSearch, Ranking: RankingHybrid, ResultCount: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), m.Snapshot().TotalQueries)
}
