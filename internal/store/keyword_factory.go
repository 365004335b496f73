package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// KeywordBackend represents the keyword index backend type.
type KeywordBackend string

const (
	// KeywordBackendOkapi uses the in-memory Okapi BM25 index with
	// JSON persistence (default). Cheap to load and rebuild per book.
	KeywordBackendOkapi KeywordBackend = "okapi"

	// KeywordBackendBleve uses Bleve v2. Persistent on-disk inverted
	// index, better for very large books, single process only due to
	// the BoltDB lock.
	KeywordBackendBleve KeywordBackend = "bleve"
)

// NewKeywordIndexWithBackend creates a KeywordIndex using the specified
// backend. The path should be the base path without extension; the
// extension is added based on backend (.bm25.json for Okapi, .bleve for
// Bleve). An empty basePath creates an in-memory index.
func NewKeywordIndexWithBackend(basePath string, config BM25Config, backend string) (KeywordIndex, error) {
	switch backend {
	case string(KeywordBackendOkapi), "":
		idx := NewOkapiBM25Index(config)
		if basePath != "" {
			path := basePath + ".bm25.json"
			if fileExists(path) {
				if err := idx.Load(path); err != nil {
					// Corrupt snapshot: start empty, caller reindexes.
					return NewOkapiBM25Index(config), nil
				}
			}
		}
		return idx, nil

	case string(KeywordBackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveKeywordIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: okapi, bleve)", backend)
	}
}

// DetectKeywordBackend detects which backend an existing index uses
// based on file existence. Returns empty string if no index exists.
func DetectKeywordBackend(basePath string) KeywordBackend {
	if fileExists(basePath + ".bm25.json") {
		return KeywordBackendOkapi
	}
	if dirExists(basePath + ".bleve") {
		return KeywordBackendBleve
	}
	return ""
}

// KeywordIndexPath returns the full path to the keyword index
// file/directory for the given backend.
func KeywordIndexPath(dataDir, bookID, backend string) string {
	basePath := filepath.Join(dataDir, bookID)
	switch backend {
	case string(KeywordBackendBleve):
		return basePath + ".bleve"
	default:
		return basePath + ".bm25.json"
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
