package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings to keep in memory.
const DefaultCacheSize = 1000

// CachedEmbedder wraps another Embedder with an LRU cache.
// Cache keys include the model name so switching models never serves
// stale vectors.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a caching wrapper around an embedder.
func NewCachedEmbedder(inner Embedder, cacheSize int) (*CachedEmbedder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}

	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(c.inner.ModelName()))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns a cached embedding or computes and caches one.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if embedding, ok := c.cache.Get(key); ok {
		return embedding, nil
	}

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, embedding)
	return embedding, nil
}

// EmbedBatch embeds texts, serving cache hits and delegating only the
// misses to the inner embedder.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missTexts []string
	var missIndices []int

	for i, text := range texts {
		key := c.cacheKey(text)
		if embedding, ok := c.cache.Get(key); ok {
			results[i] = embedding
		} else {
			missTexts = append(missTexts, text)
			missIndices = append(missIndices, i)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	embeddings, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for i, embedding := range embeddings {
		idx := missIndices[i]
		results[idx] = embedding
		c.cache.Add(c.cacheKey(texts[idx]), embedding)
	}

	return results, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the inner embedder's model name.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Available reports the inner embedder's availability.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}

// CacheLen returns the number of cached embeddings.
func (c *CachedEmbedder) CacheLen() int {
	return c.cache.Len()
}

// Purge clears the cache.
func (c *CachedEmbedder) Purge() {
	c.cache.Purge()
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
