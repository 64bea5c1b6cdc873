package mcp

// SearchInput is the input of the search_bookmarks tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"words to look for in bookmark titles, folders, URLs and page text"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of ranked results to skip, default 0"`
	Limit  int    `json:"limit,omitempty" jsonschema:"page size, default 12, at most 100"`
}

// SearchOutput is the structured result of search_bookmarks.
type SearchOutput struct {
	Results    []BookmarkOutput `json:"results" jsonschema:"ranked bookmarks for this page"`
	TotalCount int              `json:"total_count" jsonschema:"number of ranked bookmarks across all pages"`
	Offset     int              `json:"offset"`
	Limit      int              `json:"limit"`
	Indexing   bool             `json:"indexing" jsonschema:"true if an indexing pass was running; results may be incomplete"`
	UsedVector bool             `json:"used_vector" jsonschema:"true if semantic similarity contributed to the ranking"`
}

// BookmarkOutput is one ranked bookmark.
type BookmarkOutput struct {
	Rank       int     `json:"rank"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	FolderPath string  `json:"folder_path" jsonschema:"slash-separated folder of the bookmark"`
	Score      float64 `json:"score" jsonschema:"hybrid relevance score"`
}

// AskInput is the input of the ask_bookmarks tool.
type AskInput struct {
	Query string `json:"query" jsonschema:"question to answer from the user's bookmarks"`
}

// AskOutput is the structured result of ask_bookmarks.
type AskOutput struct {
	Answer  string           `json:"answer"`
	Mode    string           `json:"mode" jsonschema:"llm when a language model wrote the answer, local-fallback otherwise"`
	Sources []BookmarkOutput `json:"sources" jsonschema:"bookmarks the answer was built from"`
}

// ReindexInput is the input of the reindex_bookmarks tool.
type ReindexInput struct {
	Wait        bool `json:"wait,omitempty" jsonschema:"block until indexing finishes"`
	ContentOnly bool `json:"content_only,omitempty" jsonschema:"only refetch page text of indexed bookmarks"`
}

// ReindexOutput is the structured result of reindex_bookmarks.
type ReindexOutput struct {
	Started bool `json:"started"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput is the structured result of index_status.
type IndexStatusOutput struct {
	Metadata       PassStatus `json:"metadata"`
	Content        PassStatus `json:"content"`
	TotalDocs      int        `json:"total_docs"`
	StoredDocs     int        `json:"stored_docs"`
	ContentDocs    int        `json:"content_docs" jsonschema:"bookmarks with fetched page text"`
	EmbeddingModel string     `json:"embedding_model,omitempty"`
	Sessions       int        `json:"interactive_sessions"`
}

// PassStatus describes one indexing pass.
type PassStatus struct {
	Running       bool    `json:"running"`
	ProgressPct   float64 `json:"progress_pct"`
	LastIndexedAt string  `json:"last_indexed_at,omitempty"`
	LastReason    string  `json:"last_reason,omitempty"`
	LastError     string  `json:"last_error,omitempty"`
}
