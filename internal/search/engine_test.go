package search

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/embed"
	ragerrors "github.com/bulldra/bookrag/internal/errors"
	"github.com/bulldra/bookrag/internal/store"
)

type fakeBook struct {
	title  string
	weight float64
	chunks map[string]string
	vec    []*store.VectorResult
	kw     []*store.BM25Result
}

// fakeSource serves canned per-book results and counts sub-search calls.
type fakeSource struct {
	mu           sync.Mutex
	books        map[string]*fakeBook
	fingerprint  string
	vectorErr    error
	keywordErr   error
	vectorCalls  int
	keywordCalls int
}

func (f *fakeSource) Books() []string {
	ids := make([]string, 0, len(f.books))
	for id := range f.books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeSource) HasBook(bookID string) bool {
	_, ok := f.books[bookID]
	return ok
}

func (f *fakeSource) BookTitle(bookID string) string {
	if b, ok := f.books[bookID]; ok && b.title != "" {
		return b.title
	}
	return bookID
}

func (f *fakeSource) BookWeight(bookID, _ string) float64 {
	if b, ok := f.books[bookID]; ok && b.weight > 0 {
		return b.weight
	}
	return 1.0
}

func (f *fakeSource) VectorSearch(_ context.Context, bookID string, _ []float32, k int) ([]*store.VectorResult, error) {
	f.mu.Lock()
	f.vectorCalls++
	f.mu.Unlock()
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	b, ok := f.books[bookID]
	if !ok {
		return nil, nil
	}
	if len(b.vec) > k {
		return b.vec[:k], nil
	}
	return b.vec, nil
}

func (f *fakeSource) KeywordSearch(_ context.Context, bookID, _ string, k int) ([]*store.BM25Result, error) {
	f.mu.Lock()
	f.keywordCalls++
	f.mu.Unlock()
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	b, ok := f.books[bookID]
	if !ok {
		return nil, nil
	}
	if len(b.kw) > k {
		return b.kw[:k], nil
	}
	return b.kw, nil
}

func (f *fakeSource) ChunkText(bookID, chunkID string) (string, bool) {
	b, ok := f.books[bookID]
	if !ok {
		return "", false
	}
	text, ok := b.chunks[chunkID]
	return text, ok
}

func (f *fakeSource) Fingerprint() string {
	return f.fingerprint
}

func newTestSource() *fakeSource {
	return &fakeSource{
		fingerprint: "fp1",
		books: map[string]*fakeBook{
			"book-a": {
				title: "Python Primer",
				chunks: map[string]string{
					"a1": "python list comprehension examples with detailed walkthroughs shown here.",
					"a2": "python dictionaries and sets explained with short practical snippets.",
				},
				vec: []*store.VectorResult{
					{ID: "a1", Score: 0.9},
					{ID: "a2", Score: 0.4},
				},
				kw: []*store.BM25Result{
					{DocID: "a1", Score: 5.0, MatchedTerms: []string{"python"}},
				},
			},
			"book-b": {
				title: "SQL Handbook",
				chunks: map[string]string{
					"b1": "sql select statements filter rows using where clauses in queries.",
				},
				vec: []*store.VectorResult{
					{ID: "b1", Score: 0.8},
				},
			},
		},
	}
}

func plainStrategy(topK int) *Strategy {
	return &Strategy{
		TopK:             topK,
		SemanticWeight:   0.7,
		KeywordWeight:    0.3,
		DiversityWeight:  0.2,
		MaxContextLength: DefaultMaxContextLength,
	}
}

func newTestEngine(t *testing.T, source Source, opts ...EngineOption) *Engine {
	t.Helper()
	cfg := config.SearchConfig{
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
		KeywordScale:   10.0,
		TopK:           10,
		Rerank:         true,
		Compress:       true,
	}
	engine, err := NewEngine(source, embed.NewStaticEmbedder(), cfg, opts...)
	require.NoError(t, err)
	return engine
}

func TestEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, embed.NewStaticEmbedder(), config.SearchConfig{})
	require.Error(t, err)

	_, err = NewEngine(newTestSource(), nil, config.SearchConfig{})
	require.Error(t, err)
}

func TestEngine_EmptyQuery(t *testing.T) {
	engine := newTestEngine(t, newTestSource())

	_, err := engine.Search(context.Background(), "   ", Options{})

	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeQueryEmpty, ragerrors.GetCode(err))
}

func TestEngine_SearchMergesAcrossBooks(t *testing.T) {
	engine := newTestEngine(t, newTestSource())

	results, err := engine.Search(context.Background(), "python list", Options{
		Strategy: plainStrategy(10),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// a1 carries both sources, b1 only semantic, a2 trails
	assert.Equal(t, "a1", results[0].ChunkID)
	assert.Equal(t, "b1", results[1].ChunkID)
	assert.Equal(t, "a2", results[2].ChunkID)

	// Chunk text is resolved
	assert.Contains(t, results[0].Text, "list comprehension")
	assert.Equal(t, "Python Primer", results[0].BookTitle)
}

func TestEngine_TopKTruncation(t *testing.T) {
	engine := newTestEngine(t, newTestSource())

	results, err := engine.Search(context.Background(), "python list", Options{
		Strategy: plainStrategy(1),
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ChunkID)
}

func TestEngine_ScopedSearch(t *testing.T) {
	engine := newTestEngine(t, newTestSource())

	t.Run("scope restricts books", func(t *testing.T) {
		results, err := engine.Search(context.Background(), "python list", Options{
			BookIDs:  []string{"book-b"},
			Strategy: plainStrategy(10),
		})

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "book-b", results[0].BookID)
	})

	t.Run("unknown book skipped", func(t *testing.T) {
		results, err := engine.Search(context.Background(), "python list", Options{
			BookIDs:  []string{"book-a", "missing"},
			Strategy: plainStrategy(10),
		})

		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, "book-a", r.BookID)
		}
	})

	t.Run("entirely unknown scope yields empty results", func(t *testing.T) {
		results, err := engine.Search(context.Background(), "python list", Options{
			BookIDs:  []string{"missing"},
			Strategy: plainStrategy(10),
		})

		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestEngine_DegradesWhenOneSideFails(t *testing.T) {
	t.Run("vector failure leaves keyword results", func(t *testing.T) {
		source := newTestSource()
		source.vectorErr = errors.New("vector store unavailable")
		engine := newTestEngine(t, source)

		results, err := engine.Search(context.Background(), "python list", Options{
			Strategy: plainStrategy(10),
		})

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a1", results[0].ChunkID)
		assert.Zero(t, results[0].SemanticScore)
	})

	t.Run("keyword failure leaves vector results", func(t *testing.T) {
		source := newTestSource()
		source.keywordErr = errors.New("index locked")
		engine := newTestEngine(t, source)

		results, err := engine.Search(context.Background(), "python list", Options{
			Strategy: plainStrategy(10),
		})

		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, r := range results {
			assert.Zero(t, r.KeywordScore)
		}
	})
}

// downEmbedder fails every embedding call, as an unreachable server would.
type downEmbedder struct{}

func (downEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func (downEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func (downEmbedder) Dimensions() int                { return 4 }
func (downEmbedder) ModelName() string              { return "down" }
func (downEmbedder) Available(context.Context) bool { return false }
func (downEmbedder) Close() error                   { return nil }

func TestEngine_EmbedFailureDegradesToKeywordOnly(t *testing.T) {
	cfg := config.SearchConfig{KeywordScale: 10.0, TopK: 10}
	engine, err := NewEngine(newTestSource(), downEmbedder{}, cfg)
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "python list", Options{
		Strategy: plainStrategy(10),
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ChunkID)
	assert.Zero(t, results[0].SemanticScore)
}

func TestEngine_StrictEmbeddingsFailsSearch(t *testing.T) {
	// With a pinned remote provider there is no degraded mode: the
	// outage surfaces as a retryable error instead of silent
	// keyword-only results.
	cfg := config.SearchConfig{KeywordScale: 10.0, TopK: 10}
	engine, err := NewEngine(newTestSource(), downEmbedder{}, cfg, WithStrictEmbeddings(true))
	require.NoError(t, err)

	_, err = engine.Search(context.Background(), "python list", Options{
		Strategy: plainStrategy(10),
	})

	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeEmbedUnavailable, ragerrors.GetCode(err))
	assert.True(t, ragerrors.IsRetryable(err))
}

func TestEngine_RerankSetsScores(t *testing.T) {
	engine := newTestEngine(t, newTestSource())
	strategy := plainStrategy(10)
	strategy.Rerank = true

	results, err := engine.Search(context.Background(), "python list", Options{Strategy: strategy})

	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotZero(t, r.RerankScore)
	}
}

func TestEngine_CacheServesRepeatQuery(t *testing.T) {
	source := newTestSource()
	cache := NewResultCache("", config.CacheConfig{}, nil)
	engine := newTestEngine(t, source, WithCache(cache))

	opts := Options{Strategy: plainStrategy(10)}
	first, err := engine.Search(context.Background(), "python list", opts)
	require.NoError(t, err)
	callsAfterFirst := source.vectorCalls

	second, err := engine.Search(context.Background(), "python list", opts)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, source.vectorCalls)
	require.Len(t, second, len(first))
	assert.Equal(t, first[0].ChunkID, second[0].ChunkID)
}

func TestEngine_CacheMissAfterFingerprintChange(t *testing.T) {
	source := newTestSource()
	cache := NewResultCache("", config.CacheConfig{}, nil)
	engine := newTestEngine(t, source, WithCache(cache))

	opts := Options{Strategy: plainStrategy(10)}
	_, err := engine.Search(context.Background(), "python list", opts)
	require.NoError(t, err)
	callsAfterFirst := source.vectorCalls

	// Simulate reindexing
	source.fingerprint = "fp2"
	_, err = engine.Search(context.Background(), "python list", opts)
	require.NoError(t, err)

	assert.Greater(t, source.vectorCalls, callsAfterFirst)
}

func TestEngine_RefreshCacheBypassesRead(t *testing.T) {
	source := newTestSource()
	cache := NewResultCache("", config.CacheConfig{}, nil)
	engine := newTestEngine(t, source, WithCache(cache))

	opts := Options{Strategy: plainStrategy(10)}
	_, err := engine.Search(context.Background(), "python list", opts)
	require.NoError(t, err)
	callsAfterFirst := source.vectorCalls

	opts.RefreshCache = true
	_, err = engine.Search(context.Background(), "python list", opts)
	require.NoError(t, err)

	// The refresh re-ran the orchestration despite the warm cache
	assert.Greater(t, source.vectorCalls, callsAfterFirst)
}

func TestEngine_ExpansionMergesVariants(t *testing.T) {
	source := newTestSource()
	expander := NewExpander(config.ExpansionConfig{}, nil, nil)
	engine := newTestEngine(t, source, WithExpander(expander))

	// 方法 expands into synonym variants; the fake source returns the
	// same chunks for every query, so merging must deduplicate
	results, err := engine.Search(context.Background(), "python の方法", Options{
		Strategy: plainStrategy(10),
	})

	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, r := range results {
		key := r.BookID + "/" + r.ChunkID
		assert.False(t, seen[key], "chunk %s duplicated", key)
		seen[key] = true
	}
	assert.Len(t, results, 3)
}

func TestEngine_BookWeightingBias(t *testing.T) {
	source := newTestSource()
	source.books["book-b"].weight = 2.0
	cfg := config.SearchConfig{KeywordScale: 10.0, BookWeighting: true, TopK: 10}
	engine, err := NewEngine(source, embed.NewStaticEmbedder(), cfg)
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "select statement", Options{
		Strategy: plainStrategy(10),
	})

	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		if r.BookID == "book-b" {
			assert.InDelta(t, 2.0, r.BookWeight, 1e-9)
		}
	}
}

func TestEngine_BuildContext(t *testing.T) {
	engine := newTestEngine(t, newTestSource())

	out, err := engine.BuildContext(context.Background(), "python list", Options{
		Strategy: plainStrategy(10),
	})

	require.NoError(t, err)
	assert.Contains(t, out, "**Python Primer**")
	assert.Contains(t, out, "list comprehension")
}

func TestEngine_BuildContextEmptyCorpus(t *testing.T) {
	source := &fakeSource{books: map[string]*fakeBook{}, fingerprint: "empty"}
	engine := newTestEngine(t, source)

	out, err := engine.BuildContext(context.Background(), "anything", Options{})

	require.NoError(t, err)
	assert.Empty(t, out)
}
