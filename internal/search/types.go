// Package search implements hybrid retrieval over indexed books:
// vector similarity and BM25 keyword matching fused per book, followed
// by query-adaptive re-ranking and context compression.
package search

import (
	"context"

	"github.com/bulldra/bookrag/internal/store"
)

// QueryType classifies what kind of answer a query is after.
type QueryType string

const (
	QueryGeneral     QueryType = "general"
	QueryFactual     QueryType = "factual"
	QueryProcedural  QueryType = "procedural"
	QueryExplanatory QueryType = "explanatory"
)

// Intent names what the asker wants done with the answer. It tracks
// QueryType but reads as an answer shape rather than a question shape,
// for consumers that format or compress responses.
type Intent string

const (
	IntentGeneral     Intent = "general"
	IntentFact        Intent = "fact"
	IntentInstruction Intent = "instruction"
	IntentExplanation Intent = "explanation"
)

// Specificity buckets queries by how many concrete content terms they carry.
type Specificity string

const (
	SpecificityHigh   Specificity = "high"
	SpecificityMedium Specificity = "medium"
	SpecificityLow    Specificity = "low"
)

// QueryAnalysis is the result of intent analysis on a raw query.
// Produced by AnalyzeQuery; pure data, no I/O behind it.
type QueryAnalysis struct {
	Type        QueryType
	Intent      Intent
	Specificity Specificity
	Comparison  bool // Asks to contrast two or more things
	Temporal    bool // References time periods or ordering
	Entities    Entities
}

// Entities holds pattern-extracted terms from a query, grouped by
// rough part of speech.
type Entities struct {
	Nouns      []string
	Actions    []string
	Adjectives []string
}

// Expansion is the output of query expansion: the original query plus
// synonym-substituted and LLM-paraphrased variants.
type Expansion struct {
	Original        string
	SynonymVariants []string // Capped variants from the synonym table
	Entities        Entities
	LLMVariant      string // Empty when the paraphraser is off or degraded

	// SearchQueries is the deduplicated list actually issued to the
	// engine: the original first, then a bounded number of variants.
	SearchQueries []string
}

// Strategy holds the tunable knobs one search run executes with.
// Built either from config defaults or adaptively from a QueryAnalysis.
type Strategy struct {
	TopK             int
	SemanticWeight   float64
	KeywordWeight    float64
	DiversityWeight  float64
	Rerank           bool
	Compress         bool
	MaxContextLength int
}

// SearchResult is one retrieved chunk with its full score breakdown.
// JSON tags match the persisted result cache format.
type SearchResult struct {
	BookID    string `json:"book_id"`
	BookTitle string `json:"book_title"`
	ChunkID   string `json:"chunk_id"`
	Text      string `json:"text"`

	// SemanticScore and KeywordScore are the raw per-source scores.
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`

	// CombinedScore is the weighted sum of the normalized scores,
	// scaled by BookWeight when book weighting is on.
	CombinedScore float64 `json:"combined_score"`

	// RerankScore is set by the re-ranker; zero until then.
	RerankScore float64 `json:"rerank_score,omitempty"`

	BookWeight   float64  `json:"book_weight,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`

	// SourceQuery is the expanded query that produced this result.
	SourceQuery string `json:"source_query,omitempty"`
	IsOriginal  bool   `json:"is_original,omitempty"`
}

// Score returns the best available relevance score for a result:
// the rerank score when re-ranking ran, the fused score otherwise.
func (r *SearchResult) Score() float64 {
	if r.RerankScore != 0 {
		return r.RerankScore
	}
	return r.CombinedScore
}

// Options narrows a single Search call.
type Options struct {
	// BookIDs restricts the search scope. Empty means all books.
	BookIDs []string

	// TopK overrides the strategy's result count when > 0.
	TopK int

	// Strategy overrides adaptive strategy selection when non-nil.
	Strategy *Strategy

	// RefreshCache bypasses the cache read and overwrites the entry
	// with freshly fused results.
	RefreshCache bool
}

// Source provides per-book retrieval primitives to the engine.
// Implementations must be safe for concurrent readers; the engine
// fans out across books and across the two sub-searches of each book.
type Source interface {
	// Books returns the IDs of all indexed books.
	Books() []string

	// HasBook reports whether a book is indexed.
	HasBook(bookID string) bool

	// BookTitle returns the display title for a book, or the ID when
	// no catalog entry exists.
	BookTitle(bookID string) string

	// BookWeight returns the relevance multiplier for a book against
	// the query. 1.0 means no bias.
	BookWeight(bookID, query string) float64

	// VectorSearch returns the nearest chunks within one book.
	VectorSearch(ctx context.Context, bookID string, query []float32, k int) ([]*store.VectorResult, error)

	// KeywordSearch returns BM25 matches within one book.
	KeywordSearch(ctx context.Context, bookID, query string, k int) ([]*store.BM25Result, error)

	// ChunkText resolves a chunk ID to its text.
	ChunkText(bookID, chunkID string) (string, bool)

	// Fingerprint summarizes the current corpus state. Any indexing
	// change must produce a different value.
	Fingerprint() string
}
