package embed

import "context"

// Serial admits one embedding call at a time to the wrapped Embedder.
// Callers waiting for their turn give up when their context is done.
type Serial struct {
	inner Embedder
	sem   chan struct{}
}

var _ Embedder = (*Serial)(nil)

// NewSerial wraps inner.
func NewSerial(inner Embedder) *Serial {
	return &Serial{inner: inner, sem: make(chan struct{}, 1)}
}

func (s *Serial) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serial) release() { <-s.sem }

// Embed generates embedding for a single text.
func (s *Serial) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.inner.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts.
func (s *Serial) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (s *Serial) Dimensions() int { return s.inner.Dimensions() }

// ModelName returns the model identifier (passthrough to inner).
func (s *Serial) ModelName() string { return s.inner.ModelName() }

// Available checks if the embedder is ready (passthrough to inner).
func (s *Serial) Available(ctx context.Context) bool { return s.inner.Available(ctx) }

// Close closes the inner embedder.
func (s *Serial) Close() error { return s.inner.Close() }
