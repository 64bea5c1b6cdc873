package embed

import (
	"strings"
	"time"
)

const (
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a small general-purpose text model; bookmark
	// titles and page snippets are prose.
	DefaultOllamaModel = "nomic-embed-text"

	OllamaConnectTimeout = 5 * time.Second
	OllamaPoolSize       = 4

	defaultRetryDelay = 500 * time.Millisecond
)

// FallbackOllamaModels are tried in order when the configured model is not
// pulled.
var FallbackOllamaModels = []string{"mxbai-embed-large", "all-minilm", "embeddinggemma"}

// OllamaConfig configures the Ollama embedder. Zero values take the
// defaults applied by withDefaults.
type OllamaConfig struct {
	Host           string
	Model          string
	FallbackModels []string

	// Dimensions overrides the probed vector size when non-zero.
	Dimensions int
	BatchSize  int

	// Timeout bounds one /api/embed request; ConnectTimeout bounds the
	// model lookup at construction.
	Timeout        time.Duration
	ConnectTimeout time.Duration

	MaxRetries int
	RetryDelay time.Duration
	PoolSize   int

	// SkipHealthCheck skips model lookup and the dimension probe.
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the defaults with auto-detected dimensions.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{}.withDefaults()
}

func (c OllamaConfig) withDefaults() OllamaConfig {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	c.Host = strings.TrimRight(c.Host, "/")
	if c.Model == "" {
		c.Model = DefaultOllamaModel
	}
	if c.FallbackModels == nil {
		c.FallbackModels = FallbackOllamaModels
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = OllamaConnectTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.PoolSize <= 0 {
		c.PoolSize = OllamaPoolSize
	}
	return c
}

// Wire types for the Ollama HTTP API.
type (
	// OllamaEmbedRequest is the /api/embed body. Input is a string or a
	// []string batch.
	OllamaEmbedRequest struct {
		Model string `json:"model"`
		Input any    `json:"input"`
	}

	OllamaEmbedResponse struct {
		Model      string      `json:"model"`
		Embeddings [][]float64 `json:"embeddings"`
	}

	// OllamaModelListResponse is the /api/tags reply.
	OllamaModelListResponse struct {
		Models []OllamaModelInfo `json:"models"`
	}

	OllamaModelInfo struct {
		Name       string    `json:"name"`
		ModifiedAt time.Time `json:"modified_at"`
		Size       int64     `json:"size"`
	}
)
