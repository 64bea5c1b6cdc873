package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// fakeOllama serves /api/tags and /api/embed. Each embedding is [len(text), 0, 0].
type fakeOllama struct {
	models     []string
	failFirst  atomic.Int32 // number of embed calls answered with 500
	statusCode atomic.Int32 // if non-zero, every embed call returns it
	embedCalls atomic.Int32
	lastInputs atomic.Value
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		resp := OllamaModelListResponse{}
		for _, m := range f.models {
			resp.Models = append(resp.Models, OllamaModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		n := f.embedCalls.Add(1)
		if code := f.statusCode.Load(); code != 0 {
			http.Error(w, "nope", int(code))
			return
		}
		if n <= f.failFirst.Load() {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}

		var req OllamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []any:
			for _, s := range v {
				inputs = append(inputs, s.(string))
			}
		}
		f.lastInputs.Store(inputs)

		resp := OllamaEmbedResponse{Model: req.Model}
		for _, in := range inputs {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(len(in)), 0, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestOllama(t *testing.T, f *fakeOllama) *OllamaEmbedder {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.RetryDelay = time.Millisecond
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOllamaEmbedder_ResolvesTaggedModelAndDetectsDimensions(t *testing.T) {
	// Given: Ollama has nomic-embed-text:latest installed
	f := &fakeOllama{models: []string{"nomic-embed-text:latest"}}

	// When: I create the embedder with the untagged model name
	e := newTestOllama(t, f)

	// Then: the tagged model is used and dimensions come from a probe
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 3, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_FallsBackToAlternateModel(t *testing.T) {
	f := &fakeOllama{models: []string{"all-minilm:l6-v2"}}

	e := newTestOllama(t, f)

	assert.Equal(t, "all-minilm:l6-v2", e.ModelName())
}

func TestOllamaEmbedder_NoModelIsUnavailable(t *testing.T) {
	// Given: Ollama without any embedding model
	srv := httptest.NewServer((&fakeOllama{models: []string{"llama3"}}).handler(t))
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL

	// When: I create the embedder
	_, err := NewOllamaEmbedder(context.Background(), cfg)

	// Then: construction fails with an embedder-unavailable error
	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeEmbedderUnavailable, merrors.GetCode(err))
}

func TestOllamaEmbedder_EmbedBatch_MapsResultsAndSkipsBlankTexts(t *testing.T) {
	// Given: a working embedder
	f := &fakeOllama{models: []string{"nomic-embed-text"}}
	e := newTestOllama(t, f)

	// When: I embed a batch containing a blank text
	out, err := e.EmbedBatch(context.Background(), []string{"ab", " ", "abcd"})

	// Then: blank input gets a zero vector, others are normalized in order
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{1, 0, 0}, out[0])
	assert.Equal(t, []float32{0, 0, 0}, out[1])
	assert.Equal(t, []float32{1, 0, 0}, out[2])
	assert.Equal(t, []string{"ab", "abcd"}, f.lastInputs.Load())
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	// Given: Ollama fails the first two embed calls after the probe
	f := &fakeOllama{models: []string{"nomic-embed-text"}}
	e := newTestOllama(t, f)
	f.embedCalls.Store(0)
	f.failFirst.Store(2)

	// When: I embed a text
	vec, err := e.Embed(context.Background(), "hello")

	// Then: the call succeeds on the third attempt
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(3), f.embedCalls.Load())
}

func TestOllamaEmbedder_ClientErrorIsNotRetried(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text"}}
	e := newTestOllama(t, f)
	f.embedCalls.Store(0)
	f.statusCode.Store(http.StatusBadRequest)

	_, err := e.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeEmbeddingFailed, merrors.GetCode(err))
	assert.Equal(t, int32(1), f.embedCalls.Load())
}

func TestOllamaEmbedder_ClosedRejectsCalls(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text"}}
	e := newTestOllama(t, f)
	require.NoError(t, e.Close())

	_, err := e.EmbedBatch(context.Background(), []string{"x"})

	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
