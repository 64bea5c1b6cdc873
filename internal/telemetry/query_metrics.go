// Package telemetry keeps local statistics about search and ask queries:
// volume per kind, keyword-only versus hybrid ranking, latency buckets,
// frequent terms and queries that matched nothing. All data stays in the
// index database.
package telemetry

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Kind is the request that produced a query.
type Kind string

const (
	KindSearch Kind = "search"
	KindAsk    Kind = "ask"
)

// Ranking records whether the query embedding contributed to the ranking.
type Ranking string

const (
	RankingHybrid  Ranking = "hybrid"
	RankingKeyword Ranking = "keyword"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists the latency buckets in ascending order.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Event is one answered query.
type Event struct {
	Query       string
	Kind        Kind
	Ranking     Ranking
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e Event) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms returns the distinct lowercased words of query that are at
// least three characters long, with surrounding punctuation removed.
func ExtractTerms(query string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(w)) < 3 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// ZeroResult is a query that matched nothing.
type ZeroResult struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the in-memory view since the process started.
type Snapshot struct {
	Kinds             map[Kind]int64          `json:"kinds"`
	Rankings          map[Ranking]int64       `json:"rankings"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	ExactRepeatCount  int64                   `json:"exact_repeat_count"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Store persists aggregates.
type Store interface {
	AddDailyCounts(ctx context.Context, counts map[Counter]int64) error
	UpsertTermCounts(ctx context.Context, terms map[string]int64) error
	AddZeroResultQueries(ctx context.Context, queries []ZeroResult) error
	Report(ctx context.Context, from, to string, limit int) (*Report, error)
}

// Dimensions of the daily counters.
const (
	DimensionKind    = "kind"
	DimensionRanking = "ranking"
	DimensionLatency = "latency"
)

// Counter names one daily counter, e.g. {"2026-03-01", "kind", "ask"}.
type Counter struct {
	Date      string
	Dimension string
	Key       string
}

// Config configures the collector.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	// FlushInterval is how often pending aggregates are written. Zero
	// flushes only on Close.
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}
}

// Metrics collects query statistics. It is safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	kinds       map[Kind]int64
	rankings    map[Ranking]int64
	latencies   map[LatencyBucket]int64
	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]
	recent      *lru.Cache[string, struct{}]
	total       int64
	zeroCount   int64
	repeats     int64
	start       time.Time

	// Deltas not yet written to the store.
	pendingCounts map[Counter]int64
	pendingTerms  map[string]int64
	pendingZero   []ZeroResult

	store  Store
	logger *slog.Logger
	stopCh chan struct{}
	done   chan struct{}
	closed bool
	now    func() time.Time
}

// NewMetrics creates a collector. A nil store keeps statistics in memory.
func NewMetrics(store Store, cfg Config) *Metrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &Metrics{
		kinds:         make(map[Kind]int64),
		rankings:      make(map[Ranking]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		recent:        recent,
		start:         time.Now(),
		pendingCounts: make(map[Counter]int64),
		pendingTerms:  make(map[string]int64),
		store:         store,
		logger:        cfg.Logger,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		now:           time.Now,
	}

	if cfg.FlushInterval > 0 && store != nil {
		go m.flushLoop(cfg.FlushInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *Metrics) flushLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := m.Flush(ctx); err != nil {
				m.logger.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one answered query.
func (m *Metrics) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	bucket := LatencyToBucket(e.Latency)
	day := e.Timestamp.Format(time.DateOnly)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.total++
	m.kinds[e.Kind]++
	m.rankings[e.Ranking]++
	m.latencies[bucket]++
	m.pendingCounts[Counter{day, DimensionKind, string(e.Kind)}]++
	m.pendingCounts[Counter{day, DimensionRanking, string(e.Ranking)}]++
	m.pendingCounts[Counter{day, DimensionLatency, string(bucket)}]++

	for _, term := range ExtractTerms(e.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pendingTerms[term]++
	}

	if e.IsZeroResult() {
		m.zeroCount++
		m.zeroResults.Add(e.Query)
		m.pendingZero = append(m.pendingZero, ZeroResult{Query: e.Query, Timestamp: e.Timestamp})
	}

	key := hashQuery(e.Query)
	if _, ok := m.recent.Get(key); ok {
		m.repeats++
	}
	m.recent.Add(key, struct{}{})
}

// hashQuery normalizes case and surrounding space before hashing.
func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the statistics recorded since start.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		Kinds:             copyMap(m.kinds),
		Rankings:          copyMap(m.rankings),
		Latency:           copyMap(m.latencies),
		ZeroResultQueries: m.zeroResults.Items(),
		TotalQueries:      m.total,
		ZeroResultCount:   m.zeroCount,
		ExactRepeatCount:  m.repeats,
		Since:             m.start,
	}
	for _, term := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: count})
		}
	}
	sortTerms(s.TopTerms)
	return s
}

func sortTerms(terms []TermCount) {
	slices.SortStableFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
}

func copyMap[K comparable](in map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Flush writes pending deltas to the store. On failure the deltas are
// kept and retried on the next flush.
func (m *Metrics) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	counts, terms, zero := m.pendingCounts, m.pendingTerms, m.pendingZero
	m.pendingCounts = make(map[Counter]int64)
	m.pendingTerms = make(map[string]int64)
	m.pendingZero = nil
	m.mu.Unlock()

	if len(counts) == 0 && len(terms) == 0 && len(zero) == 0 {
		return nil
	}

	err := m.write(ctx, counts, terms, zero)
	if err != nil {
		m.mu.Lock()
		for k, v := range counts {
			m.pendingCounts[k] += v
		}
		for k, v := range terms {
			m.pendingTerms[k] += v
		}
		m.pendingZero = append(zero, m.pendingZero...)
		m.mu.Unlock()
	}
	return err
}

func (m *Metrics) write(ctx context.Context, counts map[Counter]int64, terms map[string]int64, zero []ZeroResult) error {
	if len(counts) > 0 {
		if err := m.store.AddDailyCounts(ctx, counts); err != nil {
			return err
		}
	}
	if err := m.store.UpsertTermCounts(ctx, terms); err != nil {
		return err
	}
	return m.store.AddZeroResultQueries(ctx, zero)
}

// Close stops the flush loop and writes what is pending.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Flush(ctx)
}
