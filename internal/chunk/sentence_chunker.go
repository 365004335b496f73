package chunk

import (
	"strings"
	"time"
)

// sentenceEndings are the boundary patterns searched for when trimming a
// chunk to a sentence end. Newline-suffixed variants are preferred only in
// the sense that the rightmost match wins.
var sentenceEndings = []string{"。\n", "。", "!\n", "!", "?\n", "?", "！\n", "！", "？\n", "？"}

// SentenceChunkerOptions configures the sentence-aware chunker.
type SentenceChunkerOptions struct {
	ChunkSize      int // Target chunk size in runes (default: DefaultChunkSize)
	Overlap        int // Runes carried between chunks (default: DefaultOverlap)
	BoundarySearch int // Backtrack window in runes (default: DefaultBoundarySearch)
}

// SentenceChunker splits text into fixed-stride chunks, pulling each
// chunk end back to the nearest sentence boundary when one falls inside
// the backtrack window.
type SentenceChunker struct {
	options SentenceChunkerOptions
}

// NewSentenceChunker creates a sentence chunker with default options.
func NewSentenceChunker() *SentenceChunker {
	return NewSentenceChunkerWithOptions(SentenceChunkerOptions{})
}

// NewSentenceChunkerWithOptions creates a sentence chunker with custom options.
func NewSentenceChunkerWithOptions(opts SentenceChunkerOptions) *SentenceChunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		opts.Overlap = DefaultOverlap
		if opts.Overlap >= opts.ChunkSize {
			opts.Overlap = opts.ChunkSize / 10
		}
	}
	if opts.BoundarySearch <= 0 {
		opts.BoundarySearch = DefaultBoundarySearch
	}
	return &SentenceChunker{options: opts}
}

// Chunk splits text into ordered chunks for the given book.
// The window advances by ChunkSize-Overlap regardless of where the
// boundary search lands, so consecutive chunks overlap.
func (c *SentenceChunker) Chunk(bookID, text string) []*Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	textLen := len(runes)
	stride := c.options.ChunkSize - c.options.Overlap

	var chunks []*Chunk
	now := time.Now()
	start := 0

	for start < textLen {
		end := min(start+c.options.ChunkSize, textLen)

		if end < textLen {
			searchStart := max(end-c.options.BoundarySearch, start)
			if pos := findSentenceEnd(runes, searchStart, end); pos > 0 {
				end = pos
			}
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, &Chunk{
				ID:        generateChunkID(bookID, content),
				BookID:    bookID,
				Index:     len(chunks),
				Content:   content,
				Start:     start,
				End:       end,
				CreatedAt: now,
			})
		}

		if end == textLen {
			break
		}
		start += stride
	}

	return chunks
}

// findSentenceEnd returns the rune offset just past the rightmost sentence
// ending within [searchStart, end), or 0 if none is found.
func findSentenceEnd(runes []rune, searchStart, end int) int {
	window := string(runes[searchStart:end])
	best := 0
	for _, pattern := range sentenceEndings {
		if idx := strings.LastIndex(window, pattern); idx != -1 {
			// Convert the byte offset back to a rune offset.
			pos := searchStart + len([]rune(window[:idx])) + len([]rune(pattern))
			if pos > best {
				best = pos
			}
		}
	}
	return best
}
