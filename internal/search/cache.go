package search

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio"

	"github.com/bulldra/bookrag/internal/config"
)

// DefaultCacheEntries caps the persisted result cache.
const DefaultCacheEntries = 500

// cacheEntry is one persisted cache record. The file is a JSON-lines
// append log; Put appends a line, compaction rewrites the whole file.
type cacheEntry struct {
	Query       string          `json:"query"`
	Scope       []string        `json:"scope"`
	TopK        int             `json:"top_k"`
	Fingerprint string          `json:"fingerprint"`
	Results     []*SearchResult `json:"results"`
}

// ResultCache memoizes fused search results keyed on the exact query,
// book scope, top-k, and corpus fingerprint. There is no TTL: any
// indexing change produces a new fingerprint, so stale entries simply
// stop matching. Cached results are the pre-rerank fused lists.
type ResultCache struct {
	path       string // Empty for in-memory only
	maxEntries int
	logger     *slog.Logger

	mu      sync.Mutex
	entries []cacheEntry
	keys    map[string]int // cache key -> index into entries
}

// NewResultCache opens the cache at path, loading any persisted
// entries. A corrupt cache file is dropped and rebuilt, never an
// error: the cache is an optimization, not a source of truth.
// An empty path keeps the cache in memory only.
func NewResultCache(path string, cfg config.CacheConfig, logger *slog.Logger) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}

	c := &ResultCache{
		path:       path,
		maxEntries: maxEntries,
		logger:     logger,
		keys:       make(map[string]int),
	}
	c.load()
	return c
}

// Get returns the cached results for an exact key match. The returned
// slice is a copy; callers may mutate it freely.
func (c *ResultCache) Get(query string, scope []string, topK int, fingerprint string) ([]*SearchResult, bool) {
	if c == nil {
		return nil, false
	}
	key := cacheKey(query, scope, topK, fingerprint)

	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.keys[key]
	if !ok {
		return nil, false
	}
	return copyResults(c.entries[idx].Results), true
}

// Put stores results under the key. A duplicate put for an existing
// key is a no-op. Persistence failures are logged and swallowed.
func (c *ResultCache) Put(query string, scope []string, topK int, fingerprint string, results []*SearchResult) {
	if c == nil {
		return
	}
	key := cacheKey(query, scope, topK, fingerprint)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.keys[key]; ok {
		return
	}

	entry := cacheEntry{
		Query:       query,
		Scope:       sortedCopy(scope),
		TopK:        topK,
		Fingerprint: fingerprint,
		Results:     copyResults(results),
	}
	c.keys[key] = len(c.entries)
	c.entries = append(c.entries, entry)

	if len(c.entries) > c.maxEntries {
		c.compactLocked()
		return
	}
	c.appendEntry(entry)
}

// Refresh stores results under the key, replacing any existing entry.
// Used by the cache refresh policy that bypasses reads.
func (c *ResultCache) Refresh(query string, scope []string, topK int, fingerprint string, results []*SearchResult) {
	if c == nil {
		return
	}
	key := cacheKey(query, scope, topK, fingerprint)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{
		Query:       query,
		Scope:       sortedCopy(scope),
		TopK:        topK,
		Fingerprint: fingerprint,
		Results:     copyResults(results),
	}

	if idx, ok := c.keys[key]; ok {
		c.entries[idx] = entry
		c.compactLocked()
		return
	}
	c.keys[key] = len(c.entries)
	c.entries = append(c.entries, entry)
	if len(c.entries) > c.maxEntries {
		c.compactLocked()
		return
	}
	c.appendEntry(entry)
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries, in memory and on disk.
func (c *ResultCache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.keys = make(map[string]int)
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// load reads the persisted entry log. Any malformed line marks the
// whole file corrupt: it is removed and the cache starts empty.
func (c *ResultCache) load() {
	if c.path == "" {
		return
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var entries []cacheEntry
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry cacheEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			c.logger.Warn("result cache corrupt, rebuilding", "path", c.path, "error", err)
			c.entries = nil
			c.keys = make(map[string]int)
			_ = os.Remove(c.path)
			return
		}
		entries = append(entries, entry)
	}

	for _, entry := range entries {
		key := cacheKey(entry.Query, entry.Scope, entry.TopK, entry.Fingerprint)
		if _, ok := c.keys[key]; ok {
			continue
		}
		c.keys[key] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
}

// appendEntry writes one entry line to the log.
func (c *ResultCache) appendEntry(entry cacheEntry) {
	if c.path == "" {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("result cache marshal failed", "error", err)
		return
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		c.logger.Warn("result cache append failed", "path", c.path, "error", err)
		return
	}
	defer f.Close()
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		c.logger.Warn("result cache append failed", "path", c.path, "error", err)
	}
}

// compactLocked evicts the oldest entries down to the cap and rewrites
// the log atomically. Caller holds the mutex.
func (c *ResultCache) compactLocked() {
	if over := len(c.entries) - c.maxEntries; over > 0 {
		c.entries = c.entries[over:]
	}
	c.keys = make(map[string]int, len(c.entries))
	for i, entry := range c.entries {
		c.keys[cacheKey(entry.Query, entry.Scope, entry.TopK, entry.Fingerprint)] = i
	}

	if c.path == "" {
		return
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range c.entries {
		if err := enc.Encode(entry); err != nil {
			c.logger.Warn("result cache marshal failed", "error", err)
			return
		}
	}
	if err := renameio.WriteFile(c.path, buf.Bytes(), 0o644); err != nil {
		c.logger.Warn("result cache compaction failed", "path", c.path, "error", err)
	}
}

// cacheKey builds the exact-match lookup key. Scope order does not
// matter: the same book set always produces the same key.
func cacheKey(query string, scope []string, topK int, fingerprint string) string {
	return strings.Join([]string{
		query,
		fmt.Sprintf("%d", topK),
		fingerprint,
		strings.Join(sortedCopy(scope), ","),
	}, "\x1f")
}

// FingerprintCounts summarizes per-book chunk counts into a corpus
// fingerprint: the total chunk count plus an FNV hash of the sorted
// per-book counts. Coarse on purpose: it tracks chunk-count changes,
// not content hashes.
func FingerprintCounts(counts map[string]int) string {
	books := make([]string, 0, len(counts))
	total := 0
	for id, n := range counts {
		books = append(books, id)
		total += n
	}
	sort.Strings(books)

	h := fnv.New64a()
	for _, id := range books {
		fmt.Fprintf(h, "%s:%d;", id, counts[id])
	}
	return fmt.Sprintf("%d-%016x", total, h.Sum64())
}

func sortedCopy(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}

func copyResults(results []*SearchResult) []*SearchResult {
	out := make([]*SearchResult, len(results))
	for i, r := range results {
		cloned := *r
		cloned.MatchedTerms = append([]string(nil), r.MatchedTerms...)
		out[i] = &cloned
	}
	return out
}
