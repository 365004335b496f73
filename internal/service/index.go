package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"

	"github.com/bulldra/bookrag/internal/chunk"
	ragerrors "github.com/bulldra/bookrag/internal/errors"
	"github.com/bulldra/bookrag/internal/library"
	"github.com/bulldra/bookrag/internal/store"
)

// IndexReport summarizes a batch indexing run. One failing book never
// aborts the batch; its error is recorded and the rest proceed.
type IndexReport struct {
	Indexed  []string         `json:"indexed"`
	Failed   map[string]error `json:"-"`
	Duration time.Duration    `json:"duration"`
}

// chunkRecord is the persisted form of one chunk's text.
type chunkRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// IndexBook chunks, embeds, and indexes a single book file, replacing
// any previous index state for the same book ID.
func (s *Service) IndexBook(ctx context.Context, path string) error {
	doc, err := library.ReadDocument(path)
	if err != nil {
		return err
	}

	chunks, vectors, err := s.prepareBook(ctx, doc)
	if err != nil {
		return err
	}
	if err := s.applyBook(ctx, doc.Meta, chunks, vectors); err != nil {
		return err
	}
	return s.saveVectors()
}

// IndexBatch indexes many books concurrently. Embedding and chunking
// run in parallel up to the configured worker count; index mutation is
// serialized per book inside applyBook.
func (s *Service) IndexBatch(ctx context.Context, paths []string) (*IndexReport, error) {
	start := time.Now()
	report := &IndexReport{Failed: make(map[string]error)}
	var reportMu sync.Mutex

	workers := s.cfg.Workers.IndexWorkers
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range paths {
		g.Go(func() error {
			err := s.indexOne(ctx, path)

			reportMu.Lock()
			defer reportMu.Unlock()
			if err != nil {
				report.Failed[path] = err
				s.logger.Warn("indexing failed", "path", path, "error", err)
				return nil
			}
			report.Indexed = append(report.Indexed, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(report.Indexed)
	if len(report.Indexed) > 0 {
		if err := s.saveVectors(); err != nil {
			return nil, err
		}
	}
	report.Duration = time.Since(start)

	s.logger.Info("batch indexing finished",
		"indexed", len(report.Indexed),
		"failed", len(report.Failed),
		"duration", report.Duration.String())
	return report, nil
}

func (s *Service) indexOne(ctx context.Context, path string) error {
	doc, err := library.ReadDocument(path)
	if err != nil {
		return err
	}
	chunks, vectors, err := s.prepareBook(ctx, doc)
	if err != nil {
		return err
	}
	return s.applyBook(ctx, doc.Meta, chunks, vectors)
}

// IndexLibrary discovers all books under the configured directory and
// indexes them. With force, all existing index state is discarded
// first; otherwise books are replaced in place and books whose files
// have disappeared are removed. The library lock guards against
// concurrent index runs from other processes.
func (s *Service) IndexLibrary(ctx context.Context, force bool) (*IndexReport, error) {
	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, ragerrors.IOError("acquiring library lock", err)
	}
	if !locked {
		return nil, ragerrors.New(ragerrors.ErrCodeLockHeld, "another process is indexing this library", nil)
	}
	defer func() { _ = s.lock.Unlock() }()

	paths, err := library.DiscoverBooks(s.cfg.Library.BooksDir, s.cfg.Library.Exclude)
	if err != nil {
		return nil, err
	}

	if force {
		if err := s.reset(ctx); err != nil {
			return nil, err
		}
	} else if err := s.pruneMissing(ctx, paths); err != nil {
		return nil, err
	}

	return s.IndexBatch(ctx, paths)
}

// RemoveBook drops a book from every index artifact.
func (s *Service) RemoveBook(ctx context.Context, bookID string) error {
	lock := s.bookLock(bookID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	state, ok := s.books[bookID]
	if ok {
		delete(s.books, bookID)
	}
	s.mu.Unlock()

	if ok {
		if err := s.vectors.Delete(ctx, state.vecIDs); err != nil {
			return err
		}
		if err := state.keyword.Close(); err != nil {
			s.logger.Warn("closing keyword index failed", "book", bookID, "error", err)
		}
	}

	s.removeBookArtifacts(bookID)
	if err := s.catalog.Remove(bookID); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.saveVectors()
}

// prepareBook chunks and embeds a document. This is the parallel part
// of indexing; no shared state is touched.
func (s *Service) prepareBook(ctx context.Context, doc *library.Document) ([]*chunk.Chunk, [][]float32, error) {
	chunks := s.chunker.Chunk(doc.Meta.ID, doc.Text)
	if len(chunks) == 0 {
		return nil, nil, ragerrors.New(ragerrors.ErrCodeChunkingFailed, "book produced no chunks", nil).
			WithDetail("path", doc.Meta.Path)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "embedding book chunks failed", err).
			WithDetail("book", doc.Meta.ID)
	}
	return chunks, vectors, nil
}

// applyBook replaces a book's index state: old vectors and keyword
// documents go first, then the new chunks land in every store, then
// the per-book artifacts are persisted. The shared vector store is
// saved separately by the caller so batches pay the cost once.
// Mutation is serialized per book, so batch workers indexing different
// books never wait on each other's disk writes; s.mu is held only for
// the books map.
func (s *Service) applyBook(ctx context.Context, meta *library.BookMeta, chunks []*chunk.Chunk, vectors [][]float32) error {
	bookID := meta.ID

	lock := s.bookLock(bookID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	old, existed := s.books[bookID]
	s.mu.RUnlock()

	if existed {
		if err := s.vectors.Delete(ctx, old.vecIDs); err != nil {
			return err
		}
	}

	keyword := old.keywordOrNil()
	if keyword == nil {
		var err error
		keyword, err = store.NewKeywordIndexWithBackend(
			s.keywordBasePath(bookID), store.DefaultBM25Config(), s.cfg.Search.KeywordBackend)
		if err != nil {
			return err
		}
	} else if err := keyword.Delete(ctx, old.chunkIDs); err != nil {
		return err
	}

	state := &bookState{
		keyword:  keyword,
		chunkIDs: make([]string, len(chunks)),
		vecIDs:   make([]string, len(chunks)),
		texts:    make(map[string]string, len(chunks)),
	}
	docs := make([]*store.Document, len(chunks))
	for i, c := range chunks {
		state.chunkIDs[i] = c.ID
		state.vecIDs[i] = vectorID(bookID, c.ID)
		state.texts[c.ID] = c.Content
		docs[i] = &store.Document{ID: c.ID, Content: c.Content}
	}

	if err := keyword.Index(ctx, docs); err != nil {
		return err
	}
	if err := s.vectors.Add(ctx, state.vecIDs, vectors); err != nil {
		return err
	}

	if err := s.saveChunks(bookID, chunks); err != nil {
		return err
	}
	if err := keyword.Save(keywordSnapshotPath(s.keywordBasePath(bookID), s.cfg.Search.KeywordBackend)); err != nil {
		return err
	}

	s.mu.Lock()
	s.books[bookID] = state
	s.mu.Unlock()

	meta.ChunkCount = len(chunks)
	meta.IndexedAt = time.Now().UTC()
	if err := s.catalog.Put(meta); err != nil {
		return err
	}

	s.logger.Debug("book indexed", "book", bookID, "chunks", len(chunks))
	return nil
}

func (b *bookState) keywordOrNil() store.KeywordIndex {
	if b == nil {
		return nil
	}
	return b.keyword
}

// keywordSnapshotPath is the full artifact path for a keyword index.
// The Bleve backend persists itself at its directory; Save is a no-op
// there, but the Okapi snapshot needs an explicit file.
func keywordSnapshotPath(basePath, backend string) string {
	return store.KeywordIndexPath(filepath.Dir(basePath), filepath.Base(basePath), backend)
}

func (s *Service) saveVectors() error {
	return s.vectors.Save(filepath.Join(s.cfg.Library.CacheDir, vectorsFileName))
}

func (s *Service) saveChunks(bookID string, chunks []*chunk.Chunk) error {
	records := make([]chunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = chunkRecord{ID: c.ID, Text: c.Content}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return ragerrors.InternalError("encoding chunk texts", err)
	}
	if err := renameio.WriteFile(s.chunksPath(bookID), data, 0o644); err != nil {
		return ragerrors.IOError("writing chunk texts", err)
	}
	return nil
}

func (s *Service) loadChunks(bookID string) ([]string, map[string]string, error) {
	data, err := os.ReadFile(s.chunksPath(bookID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ragerrors.New(ragerrors.ErrCodeIndexNotFound, "chunk texts are missing", err).
				WithDetail("book", bookID)
		}
		return nil, nil, ragerrors.IOError("reading chunk texts", err)
	}

	var records []chunkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, ragerrors.New(ragerrors.ErrCodeCorruptIndex, "chunk texts are corrupt", err).
			WithDetail("book", bookID)
	}

	chunkIDs := make([]string, len(records))
	texts := make(map[string]string, len(records))
	for i, r := range records {
		chunkIDs[i] = r.ID
		texts[r.ID] = r.Text
	}
	return chunkIDs, texts, nil
}

func (s *Service) removeBookArtifacts(bookID string) {
	_ = os.Remove(s.chunksPath(bookID))
	_ = os.RemoveAll(keywordSnapshotPath(s.keywordBasePath(bookID), s.cfg.Search.KeywordBackend))
}

// reset discards all index state for a forced rebuild.
func (s *Service) reset(ctx context.Context) error {
	s.mu.Lock()
	books := s.books
	s.books = make(map[string]*bookState)
	s.mu.Unlock()

	for bookID, state := range books {
		if err := state.keyword.Close(); err != nil {
			s.logger.Warn("closing keyword index failed", "book", bookID, "error", err)
		}
		s.removeBookArtifacts(bookID)
		if err := s.catalog.Remove(bookID); err != nil {
			return err
		}
	}

	// Fresh vector store drops vectors orphaned by earlier runs.
	if err := s.vectors.Close(); err != nil {
		s.logger.Warn("closing vector store failed", "error", err)
	}
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(s.embedder.Dimensions()))
	if err != nil {
		return ragerrors.InternalError("creating vector store", err)
	}
	s.vectors = vectors

	if s.cache != nil {
		if err := s.cache.Clear(); err != nil {
			return err
		}
	}
	return nil
}

// pruneMissing removes indexed books whose files no longer exist.
func (s *Service) pruneMissing(ctx context.Context, paths []string) error {
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[library.BookIDFromPath(p)] = true
	}

	for _, meta := range s.catalog.All() {
		if present[meta.ID] {
			continue
		}
		s.logger.Info("removing book with no source file", "book", meta.ID)
		if err := s.RemoveBook(ctx, meta.ID); err != nil {
			return err
		}
	}
	return nil
}
