package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewSQLiteStore_RequiresDB(t *testing.T) {
	_, err := NewSQLiteStore(nil)
	assert.Error(t, err)
}

func TestSQLiteStore_Report(t *testing.T) {
	// Given: counters on two days and some terms
	ctx := context.Background()
	st, err := NewSQLiteStore(openTestDB(t))
	require.NoError(t, err)

	require.NoError(t, st.AddDailyCounts(ctx, map[Counter]int64{
		{"2026-03-01", DimensionKind, "search"}:    3,
		{"2026-03-01", DimensionKind, "ask"}:       1,
		{"2026-03-01", DimensionRanking, "hybrid"}: 4,
		{"2026-03-01", DimensionLatency, "p10"}:    4,
		{"2026-02-01", DimensionKind, "search"}:    9,
	}))
	require.NoError(t, st.AddDailyCounts(ctx, map[Counter]int64{
		{"2026-03-01", DimensionKind, "search"}: 2,
	}))
	require.NoError(t, st.UpsertTermCounts(ctx, map[string]int64{"rust": 2, "golang": 5}))
	require.NoError(t, st.UpsertTermCounts(ctx, map[string]int64{"rust": 4}))
	require.NoError(t, st.UpsertTermCounts(ctx, nil))
	require.NoError(t, st.AddZeroResultQueries(ctx, []ZeroResult{
		{Query: "first", Timestamp: day},
		{Query: "second", Timestamp: day.Add(time.Minute)},
	}))

	// When: reporting March
	r, err := st.Report(ctx, "2026-03-01", "2026-03-31", 10)

	// Then: only March counters are summed and lists are ordered
	require.NoError(t, err)
	assert.Equal(t, int64(6), r.TotalQueries)
	assert.Equal(t, int64(5), r.Kinds[KindSearch])
	assert.Equal(t, int64(4), r.Rankings[RankingHybrid])
	assert.Equal(t, int64(4), r.Latency[BucketP10])
	assert.Equal(t, []TermCount{{"rust", 6}, {"golang", 5}}, r.TopTerms)
	require.Len(t, r.ZeroResultQueries, 2)
	assert.Equal(t, "second", r.ZeroResultQueries[0].Query)
	assert.True(t, r.ZeroResultQueries[1].Timestamp.Equal(day))
}

func TestSQLiteStore_ZeroResultHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLiteStore(openTestDB(t))
	require.NoError(t, err)

	batch := make([]ZeroResult, MaxZeroResultQueries+20)
	for i := range batch {
		batch[i] = ZeroResult{Query: fmt.Sprintf("q%d", i), Timestamp: day}
	}
	require.NoError(t, st.AddZeroResultQueries(ctx, batch))

	r, err := st.Report(ctx, "2026-01-01", "2026-12-31", 1000)
	require.NoError(t, err)
	assert.Len(t, r.ZeroResultQueries, MaxZeroResultQueries)
	assert.Equal(t, fmt.Sprintf("q%d", len(batch)-1), r.ZeroResultQueries[0].Query)
}

func TestMetrics_FlushToSQLite(t *testing.T) {
	// Given: a collector backed by SQLite
	ctx := context.Background()
	st, err := NewSQLiteStore(openTestDB(t))
	require.NoError(t, err)
	m := NewMetrics(st, Config{})
	m.now = func() time.Time { return day }

	m.Record(Event{Query: "bookmark manager", Kind: KindSearch, Ranking: RankingKeyword, ResultCount: 0, Latency: 3 * time.Millisecond})

	// When: closing
	require.NoError(t, m.Close())

	// Then: the report shows the query
	r, err := st.Report(ctx, "2026-03-01", "2026-03-01", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.TotalQueries)
	assert.Equal(t, int64(1), r.Rankings[RankingKeyword])
	assert.Len(t, r.TopTerms, 2)
	require.Len(t, r.ZeroResultQueries, 1)
	assert.Equal(t, "bookmark manager", r.ZeroResultQueries[0].Query)
}
