// Package chunk splits book text into retrievable units.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunking defaults.
const (
	DefaultChunkSize      = 4000 // Characters per chunk
	DefaultOverlap        = 500  // Characters carried between chunks
	DefaultBoundarySearch = 200  // Backtrack window for sentence boundaries
	DefaultParagraphChars = 800 // Cap for paragraph-mode chunks
)

// Chunk is a retrievable unit of book content.
// Identity within a book is the (BookID, Index) pair; Index is the
// position in the book's chunk sequence.
type Chunk struct {
	ID        string // SHA256(book_id + content)[:16]
	BookID    string
	Index     int
	Content   string
	Start     int // Rune offset in the source text
	End       int // Exclusive
	CreatedAt time.Time
}

// Chunker is the interface for splitting book text into chunks.
type Chunker interface {
	// Chunk splits text into ordered chunks for the given book.
	Chunk(bookID, text string) []*Chunk
}

// generateChunkID derives a stable chunk ID from book ID and content.
func generateChunkID(bookID, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	input := fmt.Sprintf("%s:%s", bookID, hex.EncodeToString(contentHash[:])[:16])
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
