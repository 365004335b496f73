package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Embed(t *testing.T) {
	t.Run("returns normalized vector of fixed dimensions", func(t *testing.T) {
		// Given a static embedder
		e := NewStaticEmbedder()
		defer func() { _ = e.Close() }()

		// When embedding text
		vec, err := e.Embed(context.Background(), "machine learning is fascinating")

		// Then the vector has unit norm and the right size
		require.NoError(t, err)
		assert.Len(t, vec, StaticDimensions)

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	})

	t.Run("is deterministic", func(t *testing.T) {
		e := NewStaticEmbedder()
		defer func() { _ = e.Close() }()

		a, err := e.Embed(context.Background(), "consistent input")
		require.NoError(t, err)
		b, err := e.Embed(context.Background(), "consistent input")
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("empty text yields zero vector", func(t *testing.T) {
		e := NewStaticEmbedder()
		defer func() { _ = e.Close() }()

		vec, err := e.Embed(context.Background(), "   ")
		require.NoError(t, err)
		require.Len(t, vec, StaticDimensions)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	})

	t.Run("handles japanese text", func(t *testing.T) {
		e := NewStaticEmbedder()
		defer func() { _ = e.Close() }()

		vec, err := e.Embed(context.Background(), "機械学習の方法について説明します")
		require.NoError(t, err)

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	})

	t.Run("similar texts are closer than unrelated texts", func(t *testing.T) {
		e := NewStaticEmbedder()
		defer func() { _ = e.Close() }()

		ctx := context.Background()
		a, err := e.Embed(ctx, "machine learning algorithms")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "machine learning models")
		require.NoError(t, err)
		c, err := e.Embed(ctx, "銀河系の恒星進化")
		require.NoError(t, err)

		simAB := cosine(a, b)
		simAC := cosine(a, c)
		assert.Greater(t, simAB, simAC)
	})

	t.Run("closed embedder rejects calls", func(t *testing.T) {
		e := NewStaticEmbedder()
		require.NoError(t, e.Close())

		_, err := e.Embed(context.Background(), "text")
		assert.Error(t, err)
	})
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	texts := []string{"first chunk", "", "三番目のチャンク"}
	vecs, err := e.EmbedBatch(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, vec := range vecs {
		assert.Len(t, vec, StaticDimensions)
	}

	// Single embed matches batch embed for the same text
	single, err := e.Embed(context.Background(), "first chunk")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])
}

func TestStaticEmbedder_Metadata(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.NotEmpty(t, e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
