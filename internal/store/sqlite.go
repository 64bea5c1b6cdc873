package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL DEFAULT '',
	folder_path        TEXT NOT NULL DEFAULT '/',
	date_added         INTEGER,
	text               TEXT NOT NULL DEFAULT '',
	search_text        TEXT NOT NULL DEFAULT '',
	embedding          BLOB,
	content_text       TEXT NOT NULL DEFAULT '',
	content_embedding  BLOB,
	content_updated_at INTEGER,
	updated_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const documentColumns = `id, title, url, folder_path, date_added, text, search_text,
	embedding, content_text, content_embedding, content_updated_at, updated_at`

// ErrClosed is the cause reported after Close.
var ErrClosed = errors.New("store is closed")

// SQLiteStore implements Store on SQLite in WAL mode.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the document database at path.
// An empty path creates an in-memory store for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, merrors.StorageError(fmt.Sprintf("failed to create directory %s", dir), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, merrors.StorageError("failed to open database", err)
	}

	// Single connection: writers serialize, and an in-memory database
	// stays the same database across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set pragmas directly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, merrors.StorageError("failed to set pragma", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, merrors.StorageError("failed to create schema", err)
	}

	slog.Debug("document_store_opened", slog.String("path", path))
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path ("" for in-memory).
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB exposes the connection so other tables can share the database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// UpsertMany writes docs in a single transaction.
func (s *SQLiteStore) UpsertMany(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return merrors.StorageError("upsert documents", ErrClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			folder_path = excluded.folder_path,
			date_added = excluded.date_added,
			text = excluded.text,
			search_text = excluded.search_text,
			embedding = excluded.embedding,
			content_text = excluded.content_text,
			content_embedding = excluded.content_embedding,
			content_updated_at = excluded.content_updated_at,
			updated_at = excluded.updated_at`)
	if err != nil {
		return merrors.StorageError("prepare upsert", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range docs {
		d := &docs[i]
		contentEmbedding := d.ContentEmbedding
		if d.ContentText == "" {
			contentEmbedding = nil
		}
		updatedAt := d.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Title, d.URL, d.FolderPath, encodeTime(d.DateAdded),
			d.Text, d.SearchText, encodeVector(d.Embedding),
			d.ContentText, encodeVector(contentEmbedding), encodeTime(d.ContentUpdatedAt),
			updatedAt.UnixMilli(),
		); err != nil {
			return merrors.StorageError("upsert document", err).WithDetail("id", d.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return merrors.StorageError("commit upsert", err)
	}
	return nil
}

// All returns every stored document ordered by id.
func (s *SQLiteStore) All(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, merrors.StorageError("read documents", ErrClosed)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, merrors.StorageError("read documents", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.StorageError("read documents", err)
	}
	return docs, nil
}

// Get returns the document with id, or nil if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, merrors.StorageError("read document", ErrClosed)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// IDs returns every stored document id.
func (s *SQLiteStore) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, merrors.StorageError("read ids", ErrClosed)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, merrors.StorageError("read ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, merrors.StorageError("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.StorageError("read ids", err)
	}
	return ids, nil
}

// Delete removes the document with id. Unknown ids are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return merrors.StorageError("delete document", ErrClosed)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return merrors.StorageError("delete document", err).WithDetail("id", id)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, merrors.StorageError("count documents", ErrClosed)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, merrors.StorageError("count documents", err)
	}
	return n, nil
}

// SetMeta stores value as JSON under key.
func (s *SQLiteStore) SetMeta(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return merrors.ValidationError(fmt.Sprintf("meta value for %s is not JSON-encodable", key), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return merrors.StorageError("write meta", ErrClosed)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(data))
	if err != nil {
		return merrors.StorageError("write meta", err).WithDetail("key", key)
	}
	return nil
}

// GetMeta returns the raw JSON stored under key.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, merrors.StorageError("read meta", ErrClosed)
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, merrors.StorageError("read meta", err).WithDetail("key", key)
	}
	return json.RawMessage(value), true, nil
}

// Close closes the database. Further calls fail with ErrClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (Document, error) {
	var (
		doc              Document
		dateAdded        sql.NullInt64
		embedding        []byte
		contentEmbedding []byte
		contentUpdatedAt sql.NullInt64
		updatedAt        int64
	)

	err := r.Scan(&doc.ID, &doc.Title, &doc.URL, &doc.FolderPath, &dateAdded,
		&doc.Text, &doc.SearchText, &embedding, &doc.ContentText, &contentEmbedding,
		&contentUpdatedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, err
	}
	if err != nil {
		return doc, merrors.StorageError("scan document", err)
	}

	if doc.Embedding, err = decodeVector(embedding); err != nil {
		return doc, merrors.StorageError("decode embedding", err).WithDetail("id", doc.ID)
	}
	if doc.ContentEmbedding, err = decodeVector(contentEmbedding); err != nil {
		return doc, merrors.StorageError("decode content embedding", err).WithDetail("id", doc.ID)
	}
	doc.DateAdded = nullTime(dateAdded)
	doc.ContentUpdatedAt = nullTime(contentUpdatedAt)
	doc.UpdatedAt = time.UnixMilli(updatedAt)
	return doc, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
