package embed

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory constructs an Embedder.
type Factory func(ctx context.Context) (Embedder, error)

// Lazy defers construction of an Embedder until the first call.
//
// Concurrent first calls share one construction. A failed construction is
// not remembered, so the next call tries again.
type Lazy struct {
	factory Factory
	group   singleflight.Group

	mu    sync.RWMutex
	inner Embedder
}

var _ Embedder = (*Lazy)(nil)

// NewLazy creates a Lazy embedder around factory.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// get returns the constructed embedder, creating it if needed.
func (l *Lazy) get(ctx context.Context) (Embedder, error) {
	l.mu.RLock()
	inner := l.inner
	l.mu.RUnlock()
	if inner != nil {
		return inner, nil
	}

	// Construction must outlive any single waiter's cancellation.
	createCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan("create", func() (any, error) {
		l.mu.RLock()
		existing := l.inner
		l.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		created, err := l.factory(createCtx)
		if err != nil {
			slog.Warn("embedder_init_failed", slog.String("error", err.Error()))
			return nil, err
		}

		l.mu.Lock()
		l.inner = created
		l.mu.Unlock()
		slog.Info("embedder_ready",
			slog.String("model", created.ModelName()),
			slog.Int("dimensions", created.Dimensions()))
		return created, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Embedder), nil
	}
}

// Warm constructs the embedder without embedding anything.
func (l *Lazy) Warm(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

// Ready reports whether construction has succeeded.
func (l *Lazy) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner != nil
}

// Embed generates embedding for a single text.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	inner, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return inner.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inner, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return inner.EmbedBatch(ctx, texts)
}

// Dimensions returns 0 until the embedder has been constructed.
func (l *Lazy) Dimensions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.inner == nil {
		return 0
	}
	return l.inner.Dimensions()
}

// ModelName returns "" until the embedder has been constructed.
func (l *Lazy) ModelName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.inner == nil {
		return ""
	}
	return l.inner.ModelName()
}

// Available constructs the embedder if needed and asks it.
func (l *Lazy) Available(ctx context.Context) bool {
	inner, err := l.get(ctx)
	if err != nil {
		return false
	}
	return inner.Available(ctx)
}

// Close closes the constructed embedder, if any.
func (l *Lazy) Close() error {
	l.mu.Lock()
	inner := l.inner
	l.inner = nil
	l.mu.Unlock()
	if inner == nil {
		return nil
	}
	return inner.Close()
}
