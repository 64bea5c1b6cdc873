// Package store persists bookmark documents and index metadata in SQLite.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Meta keys written by the indexing pipeline and read for status reporting.
const (
	MetaLastIndexedAt          = "lastIndexedAt"
	MetaTotalDocs              = "totalDocs"
	MetaLastError              = "lastError"
	MetaLastIndexReason        = "lastIndexReason"
	MetaContentLastIndexedAt   = "contentLastIndexedAt"
	MetaContentLastError       = "contentLastError"
	MetaLastContentIndexReason = "lastContentIndexReason"
	MetaContentIndexedDocCount = "contentIndexedDocCount"
)

// Document is the indexed representation of one bookmark.
//
// A nil Embedding means the document has not been through a metadata pass.
// ContentEmbedding is only ever set together with a non-empty ContentText.
type Document struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	FolderPath string     `json:"folderPath"`
	DateAdded  *time.Time `json:"dateAdded,omitempty"`

	// Text is the embedding input: "title\nfolderPath\nurl", trimmed.
	Text string `json:"text"`
	// SearchText is the lowercase form used for lexical matching.
	SearchText string `json:"searchText"`

	Embedding []float32 `json:"embedding,omitempty"`

	ContentText      string     `json:"contentText"`
	ContentEmbedding []float32  `json:"contentEmbedding,omitempty"`
	ContentUpdatedAt *time.Time `json:"contentUpdatedAt,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is durable storage for documents and scalar metadata.
//
// UpsertMany is atomic with respect to readers: a concurrent All never
// observes part of a batch. Every method may fail with an
// ERR_201_STORAGE_UNAVAILABLE error.
type Store interface {
	UpsertMany(ctx context.Context, docs []Document) error
	All(ctx context.Context) ([]Document, error)
	// Get returns nil, nil when id is unknown.
	Get(ctx context.Context, id string) (*Document, error)
	IDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	// SetMeta stores value as JSON. A nil value stores JSON null.
	SetMeta(ctx context.Context, key string, value any) error
	// GetMeta returns the raw JSON value and whether the key exists.
	GetMeta(ctx context.Context, key string) (json.RawMessage, bool, error)

	Close() error
}
