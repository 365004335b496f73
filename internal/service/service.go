// Package service wires the retrieval pipeline together: document
// ingestion, chunking, embedding, the keyword and vector stores, the
// catalog, and the hybrid search engine. It owns all index artifacts
// under the cache directory.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/bulldra/bookrag/internal/chunk"
	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/embed"
	ragerrors "github.com/bulldra/bookrag/internal/errors"
	"github.com/bulldra/bookrag/internal/library"
	"github.com/bulldra/bookrag/internal/llm"
	"github.com/bulldra/bookrag/internal/search"
	"github.com/bulldra/bookrag/internal/store"
)

// Artifact names under the cache directory. Each artifact is
// independently rebuildable from the books directory except the
// catalog, which also carries author metadata.
const (
	vectorsFileName = "vectors.hnsw"
	cacheFileName   = "results.jsonl"
	lockFileName    = ".lock"
	keywordDirName  = "keyword"
	chunksDirName   = "chunks"
)

// bookState is the in-memory index state for one book.
type bookState struct {
	keyword  store.KeywordIndex
	chunkIDs []string // in document order
	vecIDs   []string // vector store IDs, parallel to chunkIDs
	texts    map[string]string
}

// Service is the retrieval facade. It implements search.Source so the
// engine can query it, and exposes indexing and search operations to
// the CLI.
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	embedder embed.Embedder
	chunker  chunk.Chunker
	catalog  *library.Catalog
	vectors  *store.HNSWStore
	cache    *search.ResultCache
	engine   *search.Engine
	lock     *flock.Flock
	watcher  *library.Watcher

	mu    sync.RWMutex
	books map[string]*bookState

	// bookLocks serializes index mutation per book so batch workers
	// never block each other on disk writes; s.mu only guards the
	// books map itself.
	lockMu    sync.Mutex
	bookLocks map[string]*sync.Mutex
}

// bookLock returns the mutex serializing index mutation for one book.
func (s *Service) bookLock(bookID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.bookLocks[bookID]
	if !ok {
		l = &sync.Mutex{}
		s.bookLocks[bookID] = l
	}
	return l
}

var _ search.Source = (*Service)(nil)

// Open initializes the service: creates the cache layout, connects the
// embedder, loads persisted indexes for every cataloged book, and
// builds the search engine. Books whose artifacts are missing or
// unreadable are skipped with a warning and picked up again on the next
// index run.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cacheDir := cfg.Library.CacheDir
	for _, dir := range []string{cacheDir, filepath.Join(cacheDir, keywordDirName), filepath.Join(cacheDir, chunksDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ragerrors.IOError("creating cache directory", err)
		}
	}

	// The factory already wraps the provider in an LRU cache.
	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	vectors, err := openVectorStore(filepath.Join(cacheDir, vectorsFileName), embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	catalog, err := library.OpenCatalog(filepath.Join(cacheDir, library.CatalogFileName))
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		embedder:  embedder,
		chunker:   newChunker(cfg.Chunking),
		catalog:   catalog,
		vectors:   vectors,
		lock:      flock.New(filepath.Join(cacheDir, lockFileName)),
		books:     make(map[string]*bookState),
		bookLocks: make(map[string]*sync.Mutex),
	}

	for _, meta := range catalog.All() {
		if err := s.loadBook(ctx, meta); err != nil {
			logger.Warn("book index could not be loaded, reindex it",
				"book", meta.ID, "error", err)
		}
	}

	// With an explicitly pinned ollama provider there is no offline
	// fallback, so an embedding outage fails searches instead of
	// silently degrading them to keyword-only.
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	engineOpts := []search.EngineOption{
		search.WithLogger(logger),
		search.WithReranker(search.NewReranker()),
		search.WithCompressor(search.NewCompressor()),
		search.WithStrictEmbeddings(provider == embed.ProviderOllama),
	}
	if cfg.Expansion.Enabled {
		var paraphraser *llm.Paraphraser
		if cfg.LLM.Enabled {
			paraphraser = llm.NewParaphraser(cfg.LLM)
		}
		engineOpts = append(engineOpts, search.WithExpander(search.NewExpander(cfg.Expansion, paraphraser, logger)))
	}
	if cfg.Cache.Enabled {
		s.cache = search.NewResultCache(filepath.Join(cacheDir, cacheFileName), cfg.Cache, logger)
		engineOpts = append(engineOpts, search.WithCache(s.cache))
	}

	engine, err := search.NewEngine(s, embedder, cfg.Search, engineOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.engine = engine

	return s, nil
}

// newChunker builds the configured chunking strategy: the boundary-aware
// sentence chunker by default, or the paragraph chunker when selected.
func newChunker(cfg config.ChunkingConfig) chunk.Chunker {
	if strings.EqualFold(cfg.Strategy, config.ChunkStrategyParagraph) {
		return chunk.NewParagraphChunkerWithOptions(chunk.ParagraphChunkerOptions{
			MaxChars: cfg.ParagraphMaxChars,
		})
	}
	return chunk.NewSentenceChunkerWithOptions(chunk.SentenceChunkerOptions{
		ChunkSize:      cfg.ChunkSize,
		Overlap:        cfg.Overlap,
		BoundarySearch: cfg.BoundarySearch,
	})
}

// openVectorStore opens or creates the shared HNSW store. A persisted
// store built with a different embedding dimension cannot be reused.
func openVectorStore(path string, dimensions int) (*store.HNSWStore, error) {
	if _, err := os.Stat(path); err == nil {
		stored, err := store.ReadHNSWStoreDimensions(path)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeCorruptIndex, "vector index metadata is unreadable", err)
		}
		if stored != 0 && stored != dimensions {
			return nil, ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
				store.ErrDimensionMismatch{Expected: dimensions, Got: stored}.Error(), nil)
		}
		if stored != 0 {
			vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
			if err != nil {
				return nil, ragerrors.InternalError("creating vector store", err)
			}
			if err := vectors.Load(path); err != nil {
				return nil, ragerrors.New(ragerrors.ErrCodeCorruptIndex, "vector index could not be loaded", err)
			}
			return vectors, nil
		}
		// A vectors file with no metadata is a dangling artifact from an
		// interrupted save; start empty and let the next index run rebuild.
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
	if err != nil {
		return nil, ragerrors.InternalError("creating vector store", err)
	}
	return vectors, nil
}

// loadBook restores one book's keyword index and chunk texts from disk.
// A missing or corrupt keyword snapshot is rebuilt from the chunk texts
// so one lost artifact never degrades the book to vector-only search.
func (s *Service) loadBook(ctx context.Context, meta *library.BookMeta) error {
	chunkIDs, texts, err := s.loadChunks(meta.ID)
	if err != nil {
		return err
	}

	keyword, err := store.NewKeywordIndexWithBackend(
		s.keywordBasePath(meta.ID), store.DefaultBM25Config(), s.cfg.Search.KeywordBackend)
	if err != nil {
		return err
	}

	if len(chunkIDs) > 0 && keyword.Stats().DocumentCount == 0 {
		docs := make([]*store.Document, len(chunkIDs))
		for i, id := range chunkIDs {
			docs[i] = &store.Document{ID: id, Content: texts[id]}
		}
		if err := keyword.Index(ctx, docs); err != nil {
			return err
		}
		if err := keyword.Save(keywordSnapshotPath(s.keywordBasePath(meta.ID), s.cfg.Search.KeywordBackend)); err != nil {
			return err
		}
		s.logger.Warn("keyword snapshot rebuilt from chunk texts", "book", meta.ID)
	}

	state := &bookState{
		keyword:  keyword,
		chunkIDs: chunkIDs,
		vecIDs:   make([]string, len(chunkIDs)),
		texts:    texts,
	}
	for i, id := range chunkIDs {
		state.vecIDs[i] = vectorID(meta.ID, id)
	}

	s.mu.Lock()
	s.books[meta.ID] = state
	s.mu.Unlock()
	return nil
}

func (s *Service) keywordBasePath(bookID string) string {
	return filepath.Join(s.cfg.Library.CacheDir, keywordDirName, bookID)
}

func (s *Service) chunksPath(bookID string) string {
	return filepath.Join(s.cfg.Library.CacheDir, chunksDirName, bookID+".json")
}

// vectorID namespaces a chunk ID in the shared vector store.
func vectorID(bookID, chunkID string) string {
	return bookID + "\x1f" + chunkID
}

// chunkIDFromVector strips the book namespace from a vector store ID.
func chunkIDFromVector(bookID, vecID string) string {
	return vecID[len(bookID)+1:]
}

// Search runs a hybrid search over the indexed library.
func (s *Service) Search(ctx context.Context, query string, opts search.Options) ([]*search.SearchResult, error) {
	return s.engine.Search(ctx, query, opts)
}

// BuildContext runs a search and assembles LLM-ready context text.
func (s *Service) BuildContext(ctx context.Context, query string, opts search.Options) (string, error) {
	return s.engine.BuildContext(ctx, query, opts)
}

// ClearCache drops all cached search results.
func (s *Service) ClearCache() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear()
}

// CacheLen reports the number of cached search results.
func (s *Service) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// Watch starts reindexing books automatically when their files change.
// Deleted files are removed from the index.
func (s *Service) Watch(ctx context.Context) error {
	if s.watcher != nil {
		return nil
	}

	window, err := time.ParseDuration(s.cfg.Library.WatchDebounce)
	if err != nil {
		window = library.DefaultWatchDebounce
	}

	watcher, err := library.NewWatcher(s.cfg.Library.BooksDir, window, s.cfg.Library.Exclude, func(paths []string) {
		s.onBooksChanged(ctx, paths)
	}, s.logger)
	if err != nil {
		return err
	}
	s.watcher = watcher
	s.logger.Info("watching books directory",
		"dir", s.cfg.Library.BooksDir, "debounce", window.String())
	return nil
}

func (s *Service) onBooksChanged(ctx context.Context, paths []string) {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			bookID := library.BookIDFromPath(path)
			if err := s.RemoveBook(ctx, bookID); err != nil {
				s.logger.Warn("removing deleted book failed", "book", bookID, "error", err)
			}
			continue
		}
		if err := s.IndexBook(ctx, path); err != nil {
			s.logger.Warn("reindexing changed book failed", "path", path, "error", err)
		}
	}
}

// Close releases the watcher, indexes, and embedder.
func (s *Service) Close() error {
	var firstErr error
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			firstErr = err
		}
		s.watcher = nil
	}

	s.mu.Lock()
	for _, state := range s.books {
		if err := state.keyword.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.books = make(map[string]*bookState)
	s.mu.Unlock()

	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Books returns the IDs of all loaded books, sorted.
func (s *Service) Books() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasBook reports whether a book is loaded and searchable.
func (s *Service) HasBook(bookID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.books[bookID]
	return ok
}

// BookTitle returns the display title for a book.
func (s *Service) BookTitle(bookID string) string {
	return s.catalog.Title(bookID)
}

// BookWeight returns the catalog-driven score multiplier for a book.
func (s *Service) BookWeight(bookID, query string) float64 {
	meta, ok := s.catalog.Get(bookID)
	if !ok {
		return 1.0
	}
	return library.RelevanceWeight(meta, query, library.DefaultWeightingParams())
}

// VectorSearch finds the k nearest chunks of one book.
func (s *Service) VectorSearch(ctx context.Context, bookID string, query []float32, k int) ([]*store.VectorResult, error) {
	s.mu.RLock()
	state, ok := s.books[bookID]
	s.mu.RUnlock()
	if !ok {
		return nil, ragerrors.New(ragerrors.ErrCodeUnknownBook, "book is not indexed", nil).WithDetail("book", bookID)
	}

	results, err := s.vectors.SearchSubset(ctx, query, k, state.vecIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		r.ID = chunkIDFromVector(bookID, r.ID)
	}
	return results, nil
}

// KeywordSearch runs BM25 search over one book's chunks.
func (s *Service) KeywordSearch(ctx context.Context, bookID, query string, k int) ([]*store.BM25Result, error) {
	s.mu.RLock()
	state, ok := s.books[bookID]
	s.mu.RUnlock()
	if !ok {
		return nil, ragerrors.New(ragerrors.ErrCodeUnknownBook, "book is not indexed", nil).WithDetail("book", bookID)
	}
	return state.keyword.Search(ctx, query, k)
}

// ChunkText returns the stored text of one chunk.
func (s *Service) ChunkText(bookID, chunkID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.books[bookID]
	if !ok {
		return "", false
	}
	text, ok := state.texts[chunkID]
	return text, ok
}

// Fingerprint identifies the current index state for cache keying.
func (s *Service) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.books))
	for id, state := range s.books {
		counts[id] = len(state.chunkIDs)
	}
	return search.FingerprintCounts(counts)
}
