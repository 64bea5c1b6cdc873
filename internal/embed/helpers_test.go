package embed

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// dot computes the dot product of two unit vectors
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// mockEmbedder is a test double that counts calls and can block or fail.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	inFlight   atomic.Int64
	maxFlight  atomic.Int64

	delay     time.Duration
	err       error
	closed    atomic.Bool
	modelName string
	dims      int

	mu    sync.Mutex
	texts []string
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims, modelName: "mock-model"}
}

func (m *mockEmbedder) track() func() {
	n := m.inFlight.Add(1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return func() { m.inFlight.Add(-1) }
}

func (m *mockEmbedder) vector(text string) []float32 {
	vec := make([]float32, m.dims)
	vec[len(text)%m.dims] = 1
	return vec
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	defer m.track()()
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	defer m.track()()
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                  { return m.dims }
func (m *mockEmbedder) ModelName() string                { return m.modelName }
func (m *mockEmbedder) Available(_ context.Context) bool { return m.err == nil }
func (m *mockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

var errMockUnavailable = errors.New("mock unavailable")
