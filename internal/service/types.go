package service

import (
	"time"

	"github.com/Aman-CERP/markrag/internal/rag"
)

// RequestType names a request variant on the wire.
type RequestType string

const (
	TypeSearch  RequestType = "search"
	TypeAsk     RequestType = "ask"
	TypeReindex RequestType = "reindex"
	TypeStatus  RequestType = "status"
)

// Request is one of SearchRequest, AskRequest, ReindexRequest or
// StatusRequest. The set is closed.
type Request interface {
	Type() RequestType
	sealed()
}

// SearchRequest ranks bookmarks against Query.
type SearchRequest struct {
	Query  string `json:"query"`
	Offset int    `json:"offset,omitempty"`
	// Limit is the page size. Zero selects the configured default; other
	// values are clamped to [1, max page size].
	Limit int `json:"limit,omitempty"`
}

// AskRequest answers Query from the top matches.
type AskRequest struct {
	Query string `json:"query"`
}

// ReindexRequest starts a manual metadata pass, or only a content pass
// with ContentOnly.
type ReindexRequest struct {
	// Wait blocks until the metadata pass and its chained content pass
	// finish and returns their error.
	Wait bool `json:"wait,omitempty"`
	// ContentOnly refetches page text for the stored documents without
	// re-reading the bookmark file.
	ContentOnly bool `json:"contentOnly,omitempty"`
}

// StatusRequest reports indexing state.
type StatusRequest struct{}

func (SearchRequest) Type() RequestType  { return TypeSearch }
func (AskRequest) Type() RequestType     { return TypeAsk }
func (ReindexRequest) Type() RequestType { return TypeReindex }
func (StatusRequest) Type() RequestType  { return TypeStatus }

func (SearchRequest) sealed()  {}
func (AskRequest) sealed()     {}
func (ReindexRequest) sealed() {}
func (StatusRequest) sealed()  {}

// SearchResult is the public view of a ranked document.
type SearchResult struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	FolderPath   string  `json:"folderPath"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vectorScore"`
	LexicalScore float64 `json:"lexicalScore"`
}

// SearchResponse is the reply to SearchRequest.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"totalCount"`
	Offset     int            `json:"offset"`
	Limit      int            `json:"limit"`

	// Indexing and ContentIndexing report whether a pass was running when
	// the query was answered.
	Indexing        bool `json:"indexing"`
	ContentIndexing bool `json:"contentIndexing"`
	UsedVector      bool `json:"usedVector"`
}

// Source is one cited match of an AskResponse.
type Source struct {
	Rank       int     `json:"rank"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Score      float64 `json:"score"`
	FolderPath string  `json:"folderPath"`
}

// AskResponse is the reply to AskRequest.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Mode    rag.Mode `json:"mode,omitempty"`
	Context string   `json:"context,omitempty"`
	// LLMError is the endpoint failure behind a local fallback, if any.
	LLMError string   `json:"llmError,omitempty"`
	Sources  []Source `json:"sources"`

	Indexing        bool `json:"indexing"`
	ContentIndexing bool `json:"contentIndexing"`
	UsedVector      bool `json:"usedVector"`
}

// ReindexResponse is the reply to ReindexRequest.
type ReindexResponse struct {
	Started bool `json:"started"`
}

// StatusResponse merges live run state with persisted meta.
type StatusResponse struct {
	Running         bool       `json:"running"`
	ProgressDone    int        `json:"progressDone"`
	ProgressTotal   int        `json:"progressTotal"`
	ProgressPct     float64    `json:"progressPct"`
	LastIndexedAt   *time.Time `json:"lastIndexedAt"`
	TotalDocs       int        `json:"totalDocs"`
	LastError       string     `json:"lastError,omitempty"`
	LastIndexReason string     `json:"lastIndexReason,omitempty"`

	ContentRunning         bool       `json:"contentRunning"`
	ContentProgressDone    int        `json:"contentProgressDone"`
	ContentProgressTotal   int        `json:"contentProgressTotal"`
	ContentProgressPct     float64    `json:"contentProgressPct"`
	ContentLastIndexedAt   *time.Time `json:"contentLastIndexedAt"`
	ContentLastError       string     `json:"contentLastError,omitempty"`
	LastContentIndexReason string     `json:"lastContentIndexReason,omitempty"`
	ContentIndexedDocCount int        `json:"contentIndexedDocCount"`
	QueuedContentReason    string     `json:"queuedContentReason,omitempty"`

	StoredDocs          int    `json:"storedDocs"`
	InteractiveSessions int    `json:"interactiveSessions"`
	EmbeddingModel      string `json:"embeddingModel,omitempty"`
}
