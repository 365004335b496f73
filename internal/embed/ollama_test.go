package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOllamaServer returns a test server that mimics the Ollama embed
// and tags endpoints with a fixed 4-dimensional model.
func newOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(OllamaModelListResponse{
				Models: []OllamaModelInfo{{Name: "nomic-embed-text:latest"}},
			})
		case "/api/embed":
			var req OllamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			count := 1
			if arr, ok := req.Input.([]any); ok {
				count = len(arr)
			}
			embeddings := make([][]float64, count)
			for i := range embeddings {
				embeddings[i] = []float64{0.1, 0.2, 0.3, 0.4}
			}
			_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{
				Model:      req.Model,
				Embeddings: embeddings,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestNewOllamaEmbedder(t *testing.T) {
	t.Run("health check resolves model and dimensions", func(t *testing.T) {
		// Given a fake Ollama server
		srv := newOllamaServer(t)
		defer srv.Close()

		// When constructing with health check enabled
		e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
			Host:  srv.URL,
			Model: "nomic-embed-text",
		})

		// Then the tagged model name and detected dimensions are set
		require.NoError(t, err)
		defer func() { _ = e.Close() }()
		assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
		assert.Equal(t, 4, e.Dimensions())
	})

	t.Run("falls back to an installed model", func(t *testing.T) {
		srv := newOllamaServer(t)
		defer srv.Close()

		e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
			Host:           srv.URL,
			Model:          "not-installed",
			FallbackModels: []string{"nomic-embed-text"},
		})

		require.NoError(t, err)
		defer func() { _ = e.Close() }()
		assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	})

	t.Run("unreachable server fails", func(t *testing.T) {
		_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
			Host:  "http://127.0.0.1:1",
			Model: "nomic-embed-text",
		})
		assert.Error(t, err)
	})

	t.Run("skip health check defers connection", func(t *testing.T) {
		e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
			Host:            "http://127.0.0.1:1",
			Model:           "nomic-embed-text",
			Dimensions:      4,
			SkipHealthCheck: true,
		})
		require.NoError(t, err)
		defer func() { _ = e.Close() }()
		assert.Equal(t, 4, e.Dimensions())
	})
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	srv := newOllamaServer(t)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	t.Run("returns a normalized vector", func(t *testing.T) {
		vec, err := e.Embed(context.Background(), "some text")
		require.NoError(t, err)
		require.Len(t, vec, 4)

		var norm float32
		for _, v := range vec {
			norm += v * v
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	})

	t.Run("empty text yields zero vector without a call", func(t *testing.T) {
		vec, err := e.Embed(context.Background(), "  ")
		require.NoError(t, err)
		require.Len(t, vec, 4)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	})
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := newOllamaServer(t)
	defer srv.Close()

	t.Run("preserves order and zero-fills empties", func(t *testing.T) {
		e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
			Host:  srv.URL,
			Model: "nomic-embed-text",
		})
		require.NoError(t, err)
		defer func() { _ = e.Close() }()

		vecs, err := e.EmbedBatch(context.Background(), []string{"a", "", "b"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)

		assert.NotZero(t, vecs[0][0])
		assert.Zero(t, vecs[1][0])
		assert.NotZero(t, vecs[2][0])
	})

	t.Run("reports batch progress", func(t *testing.T) {
		var progress [][2]int
		e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
			Host:      srv.URL,
			Model:     "nomic-embed-text",
			BatchSize: 2,
			ProgressFunc: func(completed, total int) {
				progress = append(progress, [2]int{completed, total})
			},
		})
		require.NoError(t, err)
		defer func() { _ = e.Close() }()

		_, err = e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)

		require.Len(t, progress, 2)
		assert.Equal(t, [2]int{2, 3}, progress[0])
		assert.Equal(t, [2]int{3, 3}, progress[1])
	})
}

func TestOllamaEmbedder_Close(t *testing.T) {
	srv := newOllamaServer(t)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "after close")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
