package library

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/google/renameio"

	ragerrors "github.com/bulldra/bookrag/internal/errors"
)

// CatalogFileName is the catalog artifact under the cache directory.
const CatalogFileName = "catalog.json"

// Catalog is the persisted book metadata registry. Safe for concurrent
// use; saves are atomic.
type Catalog struct {
	path string

	mu    sync.RWMutex
	books map[string]*BookMeta
}

// OpenCatalog loads the catalog at path, starting empty when the file
// does not exist. A corrupt catalog file is an error: unlike the result
// cache, metadata cannot be regenerated from the index alone.
func OpenCatalog(path string) (*Catalog, error) {
	c := &Catalog{
		path:  path,
		books: make(map[string]*BookMeta),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, ragerrors.IOError("reading catalog", err)
	}

	var books []*BookMeta
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeCorruptIndex, "catalog file is corrupt", err)
	}
	for _, b := range books {
		c.books[b.ID] = b
	}
	return c, nil
}

// Get returns the metadata for a book.
func (c *Catalog) Get(bookID string) (*BookMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[bookID]
	if !ok {
		return nil, false
	}
	cloned := *b
	return &cloned, true
}

// Put inserts or replaces a book's metadata and persists the catalog.
func (c *Catalog) Put(meta *BookMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cloned := *meta
	c.books[meta.ID] = &cloned
	return c.saveLocked()
}

// Remove deletes a book's metadata and persists the catalog. Removing
// an unknown book is a no-op.
func (c *Catalog) Remove(bookID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.books[bookID]; !ok {
		return nil
	}
	delete(c.books, bookID)
	return c.saveLocked()
}

// All returns every book sorted by ID.
func (c *Catalog) All() []*BookMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()

	books := make([]*BookMeta, 0, len(c.books))
	for _, b := range c.books {
		cloned := *b
		books = append(books, &cloned)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books
}

// Len returns the number of cataloged books.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.books)
}

// Title returns the display title for a book, falling back to the ID.
func (c *Catalog) Title(bookID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if b, ok := c.books[bookID]; ok {
		return b.DisplayTitle()
	}
	return bookID
}

func (c *Catalog) saveLocked() error {
	books := make([]*BookMeta, 0, len(c.books))
	for _, b := range c.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })

	data, err := json.MarshalIndent(books, "", "  ")
	if err != nil {
		return ragerrors.InternalError("encoding catalog", err)
	}
	if err := renameio.WriteFile(c.path, data, 0o644); err != nil {
		return ragerrors.IOError("writing catalog", err)
	}
	return nil
}
