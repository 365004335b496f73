package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio"
)

// OkapiBM25Index is an in-memory Okapi BM25 index with JSON persistence.
// Negative IDF values are floored to epsilon times the average IDF, so
// terms present in most documents still contribute a small positive score.
type OkapiBM25Index struct {
	mu        sync.RWMutex
	config    BM25Config
	stopWords map[string]struct{}

	docIDs    []string
	docTokens [][]string
	docIndex  map[string]int // doc ID -> position in docIDs

	// Derived scoring state, rebuilt after every mutation.
	docFreqs  []map[string]int
	idf       map[string]float64
	avgDocLen float64

	closed bool
}

var _ KeywordIndex = (*OkapiBM25Index)(nil)

// okapiSnapshot is the JSON persistence format.
type okapiSnapshot struct {
	K1             float64    `json:"k1"`
	B              float64    `json:"b"`
	Epsilon        float64    `json:"epsilon"`
	DocIDs         []string   `json:"doc_ids"`
	TokenizedTexts [][]string `json:"tokenized_texts"`
}

// NewOkapiBM25Index creates an empty Okapi BM25 index.
func NewOkapiBM25Index(config BM25Config) *OkapiBM25Index {
	if config.K1 == 0 {
		config.K1 = 1.2
	}
	if config.B == 0 {
		config.B = 0.75
	}
	if config.Epsilon == 0 {
		config.Epsilon = 0.25
	}
	if config.MinTokenLength == 0 {
		config.MinTokenLength = 2
	}

	return &OkapiBM25Index{
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
		docIndex:  make(map[string]int),
		idf:       make(map[string]float64),
	}
}

// Index adds documents to the index. Existing IDs are replaced.
func (o *OkapiBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("index is closed")
	}

	for _, doc := range docs {
		tokens := TokenizeFiltered(doc.Content, o.stopWords)
		if pos, exists := o.docIndex[doc.ID]; exists {
			o.docTokens[pos] = tokens
		} else {
			o.docIndex[doc.ID] = len(o.docIDs)
			o.docIDs = append(o.docIDs, doc.ID)
			o.docTokens = append(o.docTokens, tokens)
		}
	}

	o.rebuild()
	return nil
}

// rebuild recomputes document frequencies and IDF. Caller holds the lock.
func (o *OkapiBM25Index) rebuild() {
	n := len(o.docIDs)
	o.docFreqs = make([]map[string]int, n)
	termDocFreq := make(map[string]int)
	totalLen := 0

	for i, tokens := range o.docTokens {
		freqs := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freqs[t]++
		}
		o.docFreqs[i] = freqs
		totalLen += len(tokens)

		for term := range freqs {
			termDocFreq[term]++
		}
	}

	if n > 0 {
		o.avgDocLen = float64(totalLen) / float64(n)
	} else {
		o.avgDocLen = 0
	}

	// Standard Okapi IDF with the rank-BM25 epsilon floor: terms in
	// more than half the documents would go negative otherwise.
	o.idf = make(map[string]float64, len(termDocFreq))
	var idfSum float64
	var negative []string

	for term, freq := range termDocFreq {
		idf := math.Log(float64(n)-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		o.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}

	if len(termDocFreq) > 0 {
		avgIDF := idfSum / float64(len(termDocFreq))
		floor := o.config.Epsilon * avgIDF
		for _, term := range negative {
			o.idf[term] = floor
		}
	}
}

// Search returns the top documents for query, scored by BM25.
func (o *OkapiBM25Index) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return nil, fmt.Errorf("index is closed")
	}

	queryTokens := TokenizeFiltered(query, o.stopWords)
	if len(queryTokens) == 0 || len(o.docIDs) == 0 {
		return []*BM25Result{}, nil
	}

	type scored struct {
		pos     int
		score   float64
		matched map[string]struct{}
	}

	results := make([]scored, 0, len(o.docIDs))
	for pos := range o.docIDs {
		freqs := o.docFreqs[pos]
		docLen := float64(len(o.docTokens[pos]))

		var score float64
		var matched map[string]struct{}
		for _, term := range queryTokens {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			idf := o.idf[term]
			norm := tf + o.config.K1*(1-o.config.B+o.config.B*docLen/o.avgDocLen)
			score += idf * tf * (o.config.K1 + 1) / norm

			if matched == nil {
				matched = make(map[string]struct{})
			}
			matched[term] = struct{}{}
		}

		if score > 0 {
			results = append(results, scored{pos: pos, score: score, matched: matched})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].pos < results[j].pos
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	out := make([]*BM25Result, len(results))
	for i, r := range results {
		terms := make([]string, 0, len(r.matched))
		for t := range r.matched {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		out[i] = &BM25Result{
			DocID:        o.docIDs[r.pos],
			Score:        r.score,
			MatchedTerms: terms,
		}
	}

	return out, nil
}

// Delete removes documents from the index.
func (o *OkapiBM25Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("index is closed")
	}

	remove := make(map[string]struct{}, len(docIDs))
	for _, id := range docIDs {
		remove[id] = struct{}{}
	}

	newIDs := o.docIDs[:0]
	newTokens := o.docTokens[:0]
	newIndex := make(map[string]int, len(o.docIDs))

	for pos, id := range o.docIDs {
		if _, gone := remove[id]; gone {
			continue
		}
		newIndex[id] = len(newIDs)
		newIDs = append(newIDs, id)
		newTokens = append(newTokens, o.docTokens[pos])
	}

	o.docIDs = newIDs
	o.docTokens = newTokens
	o.docIndex = newIndex
	o.rebuild()

	return nil
}

// AllIDs returns all document IDs in the index.
func (o *OkapiBM25Index) AllIDs() ([]string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return nil, fmt.Errorf("index is closed")
	}

	ids := make([]string, len(o.docIDs))
	copy(ids, o.docIDs)
	return ids, nil
}

// Stats returns index statistics.
func (o *OkapiBM25Index) Stats() *IndexStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return &IndexStats{}
	}

	return &IndexStats{
		DocumentCount: len(o.docIDs),
		TermCount:     len(o.idf),
		AvgDocLength:  o.avgDocLen,
	}
}

// Save writes the index to a JSON file atomically.
func (o *OkapiBM25Index) Save(path string) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return fmt.Errorf("index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	snapshot := okapiSnapshot{
		K1:             o.config.K1,
		B:              o.config.B,
		Epsilon:        o.config.Epsilon,
		DocIDs:         o.docIDs,
		TokenizedTexts: o.docTokens,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	return nil
}

// Load reads the index from a JSON file, replacing current contents.
func (o *OkapiBM25Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	var snapshot okapiSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to parse index: %w", err)
	}
	if len(snapshot.DocIDs) != len(snapshot.TokenizedTexts) {
		return fmt.Errorf("corrupt index: %d ids but %d documents",
			len(snapshot.DocIDs), len(snapshot.TokenizedTexts))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("index is closed")
	}

	if snapshot.K1 != 0 {
		o.config.K1 = snapshot.K1
	}
	if snapshot.B != 0 {
		o.config.B = snapshot.B
	}
	if snapshot.Epsilon != 0 {
		o.config.Epsilon = snapshot.Epsilon
	}

	o.docIDs = snapshot.DocIDs
	o.docTokens = snapshot.TokenizedTexts
	o.docIndex = make(map[string]int, len(o.docIDs))
	for pos, id := range o.docIDs {
		o.docIndex[id] = pos
	}

	o.rebuild()
	return nil
}

// Close releases resources.
func (o *OkapiBM25Index) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	return nil
}
