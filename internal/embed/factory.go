package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/markrag/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderAuto tries Ollama and falls back to static.
	ProviderAuto ProviderType = ""

	// ProviderOllama uses the Ollama HTTP API and fails if it is unreachable.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings.
	ProviderStatic ProviderType = "static"
)

// NewFromConfig creates the embedder selected by cfg.Provider.
//
// An explicit "ollama" selection never falls back silently: if Ollama cannot
// be reached the error is returned. Auto-detection logs a warning and uses
// StaticEmbedder instead.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderStatic:
		return NewStaticEmbedder(cfg.Dimensions), nil
	case ProviderOllama:
		return NewOllamaEmbedder(ctx, ollamaConfig(cfg))
	default:
		e, err := NewOllamaEmbedder(ctx, ollamaConfig(cfg))
		if err == nil {
			return e, nil
		}
		slog.Warn("ollama_unavailable_using_static",
			slog.String("host", cfg.OllamaHost),
			slog.String("error", err.Error()))
		return NewStaticEmbedder(cfg.Dimensions), nil
	}
}

// ollamaConfig maps the user configuration onto OllamaConfig.
// Dimensions are auto-detected; cfg.Dimensions only sizes static vectors.
func ollamaConfig(cfg config.EmbeddingsConfig) OllamaConfig {
	oc := DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		oc.Host = cfg.OllamaHost
	}
	if cfg.Model != "" {
		oc.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		oc.Timeout = cfg.Timeout
	}
	return oc
}

// Shared is the process-wide embedding capability.
//
// Pipeline batches and query embeddings go through the same Serial gate so
// no two calls overlap. Query embeddings are additionally cached.
type Shared struct {
	lazy   *Lazy
	serial *Serial
	query  *CachedEmbedder
}

// NewShared builds the lazily-initialized, serialized embedder for cfg.
func NewShared(cfg config.EmbeddingsConfig) *Shared {
	return NewSharedWithFactory(func(ctx context.Context) (Embedder, error) {
		return NewFromConfig(ctx, cfg)
	}, cfg.QueryCacheSize)
}

// NewSharedWithFactory is NewShared with a custom factory.
func NewSharedWithFactory(factory Factory, queryCacheSize int) *Shared {
	lazy := NewLazy(factory)
	serial := NewSerial(lazy)
	return &Shared{
		lazy:   lazy,
		serial: serial,
		query:  NewCachedEmbedder(serial, queryCacheSize),
	}
}

// Batch returns the embedder used by the indexing pipeline.
func (s *Shared) Batch() Embedder { return s.serial }

// Query returns the cached embedder used for query text.
func (s *Shared) Query() Embedder { return s.query }

// Warm constructs the underlying embedder.
func (s *Shared) Warm(ctx context.Context) error { return s.lazy.Warm(ctx) }

// Ready reports whether the underlying embedder has been constructed.
func (s *Shared) Ready() bool { return s.lazy.Ready() }

// ModelName returns the active model, or "" before construction.
func (s *Shared) ModelName() string { return s.lazy.ModelName() }

// Close releases the underlying embedder.
func (s *Shared) Close() error { return s.query.Close() }
