package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Embed_ReturnsConfiguredDimensions(t *testing.T) {
	// Given: static embedder with 64 dimensions
	embedder := NewStaticEmbedder(64)
	defer func() { _ = embedder.Close() }()

	// When: I embed a bookmark text
	embedding, err := embedder.Embed(context.Background(), "Go Blog\n/Bookmarks bar/Dev\nhttps://go.dev/blog")

	// Then: a 64-dimension unit vector is returned
	require.NoError(t, err)
	assert.Len(t, embedding, 64)
	assert.InDelta(t, 1.0, vectorMagnitude(embedding), 0.001)
}

func TestStaticEmbedder_DefaultDimensions(t *testing.T) {
	embedder := NewStaticEmbedder(0)
	assert.Equal(t, StaticDimensions, embedder.Dimensions())
	assert.Equal(t, "static", embedder.ModelName())
}

func TestStaticEmbedder_Embed_IsDeterministicAcrossInstances(t *testing.T) {
	// Given: two separate embedder instances
	e1 := NewStaticEmbedder(0)
	e2 := NewStaticEmbedder(0)

	// When: I embed the same text with both
	v1, err1 := e1.Embed(context.Background(), "Rust book")
	v2, err2 := e2.Embed(context.Background(), "Rust book")

	// Then: identical vectors are returned
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	// Given: a query and two candidate titles
	embedder := NewStaticEmbedder(0)
	ctx := context.Background()
	query, _ := embedder.Embed(ctx, "kubernetes networking")
	related, _ := embedder.Embed(ctx, "Kubernetes networking guide")
	unrelated, _ := embedder.Embed(ctx, "sourdough bread recipe")

	// Then: the related title is closer to the query
	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestStaticEmbedder_Embed_BlankTextIsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder(32)

	embedding, err := embedder.Embed(context.Background(), "   ")

	require.NoError(t, err)
	assert.Len(t, embedding, 32)
	assert.Zero(t, vectorMagnitude(embedding))
}

func TestStaticEmbedder_EmbedBatch_PreservesOrder(t *testing.T) {
	// Given: three texts
	embedder := NewStaticEmbedder(0)
	ctx := context.Background()
	texts := []string{"alpha", "beta", "gamma"}

	// When: I embed them as a batch
	batch, err := embedder.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	// Then: each result equals the single-text embedding at the same position
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, _ := embedder.Embed(ctx, text)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedder_Closed(t *testing.T) {
	embedder := NewStaticEmbedder(0)
	require.NoError(t, embedder.Close())

	_, err := embedder.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, embedder.Available(context.Background()))
}

func TestTokenize_SplitsOnNonAlphanumerics(t *testing.T) {
	assert.Equal(t, []string{"go", "dev", "blog", "2024"}, tokenize("go.dev/Blog-2024"))
}
