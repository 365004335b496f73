// Package library manages the book catalog: metadata, relevance
// weighting, document discovery, and change watching.
package library

import (
	"strings"
	"time"
)

// BookMeta describes one book in the catalog.
type BookMeta struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Author string `json:"author,omitempty" yaml:"author"`
	Year   int    `json:"year,omitempty" yaml:"year"`
	Path   string `json:"path" yaml:"path"`

	ChunkCount int       `json:"chunk_count,omitempty" yaml:"-"`
	IndexedAt  time.Time `json:"indexed_at,omitempty" yaml:"-"`
}

// DisplayTitle returns the title, or the ID when none was extracted.
func (m *BookMeta) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.ID
}

// BookIDFromPath derives a stable book ID from a file path: the base
// name without extension, lowercased, spaces collapsed to hyphens.
func BookIDFromPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	base = strings.ToLower(strings.TrimSpace(base))
	return strings.Join(strings.Fields(base), "-")
}
