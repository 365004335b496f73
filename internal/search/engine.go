package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/embed"
	ragerrors "github.com/bulldra/bookrag/internal/errors"
	"github.com/bulldra/bookrag/internal/store"
)

// candidateMultiplier widens per-book retrieval so fusion sees more
// candidates than the final top-k.
const candidateMultiplier = 2

// Engine orchestrates hybrid search: query analysis and expansion,
// per-book vector and keyword retrieval, score fusion, re-ranking,
// and context compression.
type Engine struct {
	source     Source
	embedder   embed.Embedder
	cfg        config.SearchConfig
	expander   *Expander
	reranker   *Reranker
	compressor *Compressor
	cache      *ResultCache
	logger     *slog.Logger

	// strictEmbeddings makes a query-embedding failure fatal instead of
	// degrading to keyword-only search. Set when the embedding provider
	// is explicitly configured with no offline fallback.
	strictEmbeddings bool
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithExpander enables multi-query expansion. When set, each search
// issues the expanded query set and merges results.
func WithExpander(exp *Expander) EngineOption {
	return func(e *Engine) {
		e.expander = exp
	}
}

// WithReranker sets the diversity-aware re-ranker applied after fusion.
func WithReranker(r *Reranker) EngineOption {
	return func(e *Engine) {
		e.reranker = r
	}
}

// WithCache sets the fused-result cache, read before orchestration and
// written before re-ranking.
func WithCache(c *ResultCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithCompressor sets the context compressor used by BuildContext.
func WithCompressor(c *Compressor) EngineOption {
	return func(e *Engine) {
		e.compressor = c
	}
}

// WithStrictEmbeddings makes query-embedding failures fatal. Without it
// the engine degrades to keyword-only search when the embedder is down.
func WithStrictEmbeddings(strict bool) EngineOption {
	return func(e *Engine) {
		e.strictEmbeddings = strict
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a hybrid search engine. Source and embedder are
// required; expansion, re-ranking, caching, and compression are opt-in.
func NewEngine(source Source, embedder embed.Embedder, cfg config.SearchConfig, opts ...EngineOption) (*Engine, error) {
	if source == nil {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidInput, "search source is nil", nil)
	}
	if embedder == nil {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidInput, "embedder is nil", nil)
	}

	e := &Engine{
		source:   source,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs the hybrid pipeline for one query and returns ranked
// results. Unknown books in the scope are skipped; a scope with no
// indexed books yields empty results, not an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ragerrors.New(ragerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}

	traceID := uuid.NewString()[:8]
	strategy := e.planStrategy(query, opts)
	scope := e.resolveScope(opts.BookIDs)
	if len(scope) == 0 {
		return []*SearchResult{}, nil
	}

	var fused []*SearchResult
	cached := false
	if e.cache != nil && !opts.RefreshCache {
		if hit, ok := e.cache.Get(query, scope, strategy.TopK, e.source.Fingerprint()); ok {
			e.logger.Debug("result cache hit", "trace_id", traceID, "query", query, "results", len(hit))
			fused = hit
			cached = true
		}
	}

	if !cached {
		queries := []string{query}
		if e.expander != nil {
			queries = e.expander.Expand(ctx, query).SearchQueries
		}

		var err error
		fused, err = e.multiSearch(ctx, queries, scope, strategy)
		if err != nil {
			return nil, err
		}
		e.enrich(fused)

		if e.cache != nil {
			if opts.RefreshCache {
				e.cache.Refresh(query, scope, strategy.TopK, e.source.Fingerprint(), fused)
			} else {
				e.cache.Put(query, scope, strategy.TopK, e.source.Fingerprint(), fused)
			}
		}
	}

	results := e.finishResults(query, fused, strategy)
	if len(results) > strategy.TopK {
		results = results[:strategy.TopK]
	}

	e.logger.Debug("search complete",
		"trace_id", traceID,
		"query", query,
		"books", len(scope),
		"results", len(results),
		"cached", cached,
	)
	return results, nil
}

// BuildContext runs the full pipeline and formats the results into a
// bounded context string for a downstream consumer.
func (e *Engine) BuildContext(ctx context.Context, query string, opts Options) (string, error) {
	strategy := e.planStrategy(query, opts)
	opts.Strategy = &strategy

	results, err := e.Search(ctx, query, opts)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	compressor := e.compressor
	if compressor == nil {
		compressor = NewCompressor()
	}
	if !strategy.Compress {
		return compressor.FormatSimple(results), nil
	}
	return compressor.Compress(results, query, strategy.MaxContextLength), nil
}

// planStrategy derives the strategy for one call: explicit override,
// otherwise adaptive from query analysis, with config and per-call
// adjustments on top.
func (e *Engine) planStrategy(query string, opts Options) Strategy {
	var strategy Strategy
	if opts.Strategy != nil {
		strategy = *opts.Strategy
	} else {
		strategy = PlanStrategy(AnalyzeQuery(query))
		if !e.cfg.Rerank {
			strategy.Rerank = false
		}
		if !e.cfg.Compress {
			strategy.Compress = false
		}
		if e.cfg.MaxContextLength > 0 {
			strategy.MaxContextLength = e.cfg.MaxContextLength
		}
	}
	if opts.TopK > 0 {
		strategy.TopK = opts.TopK
	}
	if strategy.TopK <= 0 {
		strategy.TopK = DefaultTopK
	}
	return strategy
}

// resolveScope filters the requested books down to indexed ones.
// Nil or empty means all indexed books, in sorted order.
func (e *Engine) resolveScope(bookIDs []string) []string {
	if len(bookIDs) == 0 {
		all := e.source.Books()
		sorted := make([]string, len(all))
		copy(sorted, all)
		sort.Strings(sorted)
		return sorted
	}

	scope := make([]string, 0, len(bookIDs))
	for _, id := range bookIDs {
		if !e.source.HasBook(id) {
			e.logger.Debug("skipping unindexed book", "book_id", id)
			continue
		}
		scope = append(scope, id)
	}
	return scope
}

// multiSearch runs the hybrid search for each expanded query and
// concatenates the per-query result lists in query order, dropping
// later duplicates of a chunk. The original query runs first, so its
// results take precedence over variant hits.
func (e *Engine) multiSearch(ctx context.Context, queries []string, scope []string, strategy Strategy) ([]*SearchResult, error) {
	seen := make(map[string]struct{})
	var merged []*SearchResult

	for i, q := range queries {
		results, err := e.searchOne(ctx, q, scope, strategy)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			key := r.BookID + "\x00" + r.ChunkID
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			r.SourceQuery = q
			r.IsOriginal = i == 0
			merged = append(merged, r)
		}
	}
	return merged, nil
}

// searchOne fans out one query across the scoped books, fuses each
// book's scores, and returns the merged list sorted by combined score
// and truncated to top-k. Within a book the vector and keyword
// sub-searches run concurrently and either side may degrade
// independently; a book only drops out when both fail.
func (e *Engine) searchOne(ctx context.Context, query string, scope []string, strategy Strategy) ([]*SearchResult, error) {
	candidates := strategy.TopK * candidateMultiplier

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if e.strictEmbeddings {
			return nil, ragerrors.New(ragerrors.ErrCodeEmbedUnavailable,
				"query embedding failed", err)
		}
		// Keyword-only search still works without embeddings.
		e.logger.Warn("query embedding failed, keyword-only search", "error", err)
		queryVec = nil
	}

	var (
		mu  sync.Mutex
		all []*SearchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, bookID := range scope {
		g.Go(func() error {
			vec, kw, err := e.searchBook(gctx, bookID, query, queryVec, candidates)
			if err != nil {
				return err
			}

			weight := 1.0
			if e.cfg.BookWeighting {
				weight = e.source.BookWeight(bookID, query)
			}

			fused := fuseBook(
				bookID, e.source.BookTitle(bookID), weight,
				vec, kw,
				strategy.SemanticWeight, strategy.KeywordWeight, e.cfg.KeywordScale,
			)

			mu.Lock()
			all = append(all, fused...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortByCombined(all)
	if len(all) > strategy.TopK {
		all = all[:strategy.TopK]
	}
	return all, nil
}

// searchBook runs the two sub-searches of one book concurrently.
func (e *Engine) searchBook(ctx context.Context, bookID, query string, queryVec []float32, k int) ([]*store.VectorResult, []*store.BM25Result, error) {
	var (
		vec []*store.VectorResult
		kw  []*store.BM25Result
	)

	g, gctx := errgroup.WithContext(ctx)

	if queryVec != nil {
		g.Go(func() error {
			results, err := e.source.VectorSearch(gctx, bookID, queryVec, k)
			if err != nil {
				if ragerrors.IsFatal(err) {
					return err
				}
				e.logger.Warn("vector search degraded", "book_id", bookID, "error", err)
				return nil
			}
			vec = results
			return nil
		})
	}

	g.Go(func() error {
		results, err := e.source.KeywordSearch(gctx, bookID, query, k)
		if err != nil {
			e.logger.Warn("keyword search degraded", "book_id", bookID, "error", err)
			return nil
		}
		kw = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vec, kw, nil
}

// enrich fills in chunk text for results that lack it.
func (e *Engine) enrich(results []*SearchResult) {
	for _, r := range results {
		if r.Text != "" {
			continue
		}
		if text, ok := e.source.ChunkText(r.BookID, r.ChunkID); ok {
			r.Text = text
		}
	}
}

// finishResults applies re-ranking to fused results when the strategy
// calls for it. Cached results pass through here too, so a cache hit
// still gets fresh re-ranking.
func (e *Engine) finishResults(query string, results []*SearchResult, strategy Strategy) []*SearchResult {
	if !strategy.Rerank || len(results) == 0 {
		return results
	}
	reranker := e.reranker
	if reranker == nil {
		reranker = NewReranker()
	}
	return reranker.Rerank(query, results, strategy.DiversityWeight)
}
