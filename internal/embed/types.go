package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// DefaultBatchSize caps the number of texts sent in one /api/embed request.
	// Pipeline batches are far smaller, so this only matters for direct callers.
	DefaultBatchSize = 32

	// DefaultTimeout is the per-request timeout for embedding calls.
	DefaultTimeout = 60 * time.Second

	// DefaultColdTimeout bounds the first request, which may have to load the model.
	DefaultColdTimeout = 180 * time.Second

	// DefaultMaxRetries is the number of retries for transient HTTP failures.
	DefaultMaxRetries = 3

	// DefaultDimensions is used when the provider does not report a dimension.
	DefaultDimensions = 768

	// StaticDimensions is the vector length produced by StaticEmbedder.
	StaticDimensions = 256
)

// Embedder turns text into fixed-length vectors.
//
// EmbedBatch must return exactly one vector per input, in input order.
// Implementations are safe for concurrent use but callers that share a
// single model process should wrap them in Serial.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector L2-normalizes a vector in place and returns it.
// Zero vectors are returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
