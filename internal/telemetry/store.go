package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MaxZeroResultQueries bounds the persisted zero-result history.
const MaxZeroResultQueries = 100

const schema = `
CREATE TABLE IF NOT EXISTS query_daily_stats (
	date      TEXT NOT NULL,
	dimension TEXT NOT NULL,
	key       TEXT NOT NULL,
	count     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, dimension, key)
);
CREATE TABLE IF NOT EXISTS query_terms (
	term      TEXT PRIMARY KEY,
	count     INTEGER NOT NULL DEFAULT 0,
	last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);
CREATE TABLE IF NOT EXISTS zero_result_queries (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	query     TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
`

// SQLiteStore keeps aggregates in tables of the index database. It does
// not own the connection.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the telemetry tables in db if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// AddDailyCounts adds counts to the stored daily counters.
func (s *SQLiteStore) AddDailyCounts(ctx context.Context, counts map[Counter]int64) error {
	return s.inTx(ctx, `
		INSERT INTO query_daily_stats (date, dimension, key, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, dimension, key) DO UPDATE SET count = count + excluded.count
	`, func(stmt *sql.Stmt) error {
		for c, n := range counts {
			if _, err := stmt.ExecContext(ctx, c.Date, c.Dimension, c.Key, n); err != nil {
				return fmt.Errorf("add daily count: %w", err)
			}
		}
		return nil
	})
}

// UpsertTermCounts adds to the stored term frequencies.
func (s *SQLiteStore) UpsertTermCounts(ctx context.Context, terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, func(stmt *sql.Stmt) error {
		for term, n := range terms {
			if _, err := stmt.ExecContext(ctx, term, n); err != nil {
				return fmt.Errorf("upsert term count: %w", err)
			}
		}
		return nil
	})
}

// AddZeroResultQueries appends queries and trims the history to
// MaxZeroResultQueries, dropping the oldest.
func (s *SQLiteStore) AddZeroResultQueries(ctx context.Context, queries []ZeroResult) error {
	if len(queries) == 0 {
		return nil
	}
	err := s.inTx(ctx, `INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, q := range queries {
				if _, err := stmt.ExecContext(ctx, q.Query, q.Timestamp.UnixMilli()); err != nil {
					return fmt.Errorf("insert zero-result query: %w", err)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM zero_result_queries
		WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)
	`, MaxZeroResultQueries)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Report aggregates stored statistics.
type Report struct {
	From              string                  `json:"from"`
	To                string                  `json:"to"`
	TotalQueries      int64                   `json:"total_queries"`
	Kinds             map[Kind]int64          `json:"kinds"`
	Rankings          map[Ranking]int64       `json:"rankings"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []ZeroResult            `json:"zero_result_queries"`
}

// Report sums the daily counters between from and to (inclusive,
// YYYY-MM-DD) and lists up to limit top terms and recent zero-result
// queries.
func (s *SQLiteStore) Report(ctx context.Context, from, to string, limit int) (*Report, error) {
	r := &Report{
		From:              from,
		To:                to,
		Kinds:             make(map[Kind]int64),
		Rankings:          make(map[Ranking]int64),
		Latency:           make(map[LatencyBucket]int64),
		TopTerms:          []TermCount{},
		ZeroResultQueries: []ZeroResult{},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dimension, key, SUM(count)
		FROM query_daily_stats
		WHERE date >= ? AND date <= ?
		GROUP BY dimension, key
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dim, key string
		var n int64
		if err := rows.Scan(&dim, &key, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		switch dim {
		case DimensionKind:
			r.Kinds[Kind(key)] = n
			r.TotalQueries += n
		case DimensionRanking:
			r.Rankings[Ranking(key)] = n
		case DimensionLatency:
			r.Latency[LatencyBucket(key)] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	terms, err := s.db.QueryContext(ctx, `SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer terms.Close()
	for terms.Next() {
		var tc TermCount
		if err := terms.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.TopTerms = append(r.TopTerms, tc)
	}
	if err := terms.Err(); err != nil {
		return nil, err
	}

	zero, err := s.db.QueryContext(ctx, `SELECT query, timestamp FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer zero.Close()
	for zero.Next() {
		var q string
		var ms int64
		if err := zero.Scan(&q, &ms); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.ZeroResultQueries = append(r.ZeroResultQueries, ZeroResult{Query: q, Timestamp: time.UnixMilli(ms).UTC()})
	}
	return r, zero.Err()
}
