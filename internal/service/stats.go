package service

import (
	"time"
)

// Stats describes the indexed library.
type Stats struct {
	TotalBooks     int         `json:"total_books"`
	TotalChunks    int         `json:"total_chunks"`
	Dimensions     int         `json:"dimensions"`
	EmbeddingModel string      `json:"embedding_model"`
	KeywordBackend string      `json:"keyword_backend"`
	CacheEntries   int         `json:"cache_entries"`
	Books          []BookStats `json:"books"`
}

// BookStats describes one indexed book.
type BookStats struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author,omitempty"`
	Year       int       `json:"year,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Stats reports the current index state, catalog order.
func (s *Service) Stats() Stats {
	stats := Stats{
		Dimensions:     s.embedder.Dimensions(),
		EmbeddingModel: s.embedder.ModelName(),
		KeywordBackend: s.cfg.Search.KeywordBackend,
		CacheEntries:   s.CacheLen(),
	}

	s.mu.RLock()
	loaded := make(map[string]int, len(s.books))
	for id, state := range s.books {
		loaded[id] = len(state.chunkIDs)
	}
	s.mu.RUnlock()

	for _, meta := range s.catalog.All() {
		count, ok := loaded[meta.ID]
		if !ok {
			count = meta.ChunkCount
		}
		stats.Books = append(stats.Books, BookStats{
			ID:         meta.ID,
			Title:      meta.DisplayTitle(),
			Author:     meta.Author,
			Year:       meta.Year,
			ChunkCount: count,
			IndexedAt:  meta.IndexedAt,
		})
		stats.TotalChunks += count
	}
	stats.TotalBooks = len(stats.Books)
	return stats
}
