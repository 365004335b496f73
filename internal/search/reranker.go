package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bulldra/bookrag/internal/store"
)

// Re-ranker feature weights. Diversity weight comes from the strategy
// per call; overlap and quality are fixed characteristics of the
// scoring model.
const (
	DefaultOverlapWeight = 0.3
	DefaultQualityWeight = 0.1

	// duplicateSimilarityThreshold is the token Jaccard similarity above
	// which two results count as near-duplicates.
	duplicateSimilarityThreshold = 0.7

	// duplicatePenaltyFactor scales the similarity into a penalty.
	duplicatePenaltyFactor = 0.3
)

var headingRegex = regexp.MustCompile(`(?m)^#+ `)

// Reranker rescores fused results with query overlap, text quality,
// and a diversity penalty that demotes near-duplicate chunks.
type Reranker struct {
	overlapWeight float64
	qualityWeight float64
}

// NewReranker returns a re-ranker with default feature weights.
func NewReranker() *Reranker {
	return &Reranker{
		overlapWeight: DefaultOverlapWeight,
		qualityWeight: DefaultQualityWeight,
	}
}

// Rerank scores results and returns them sorted by rerank score
// descending. The diversity penalty only looks backward: each result is
// compared against results before it in the incoming order, so results
// must arrive in their fused pre-rerank order and pass through once.
func (rr *Reranker) Rerank(query string, results []*SearchResult, diversityWeight float64) []*SearchResult {
	if len(results) == 0 {
		return results
	}

	queryTokens := tokenSet(query)
	textTokens := make([]map[string]struct{}, len(results))
	for i, r := range results {
		textTokens[i] = tokenSet(r.Text)
	}

	penalties := diversityPenalties(textTokens)

	reranked := make([]*SearchResult, len(results))
	for i, r := range results {
		overlap := overlapScore(queryTokens, textTokens[i])
		quality := qualityScore(r.Text)

		r.RerankScore = r.CombinedScore +
			rr.overlapWeight*overlap +
			rr.qualityWeight*quality -
			diversityWeight*penalties[i]
		reranked[i] = r
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})
	return reranked
}

// diversityPenalties accumulates, for each result, a penalty for every
// earlier result it nearly duplicates.
func diversityPenalties(tokens []map[string]struct{}) []float64 {
	penalties := make([]float64, len(tokens))
	for i := range tokens {
		for j := range tokens[:i] {
			similarity := jaccard(tokens[i], tokens[j])
			if similarity > duplicateSimilarityThreshold {
				penalties[i] += duplicatePenaltyFactor * similarity
			}
		}
	}
	return penalties
}

// overlapScore is the fraction of query tokens present in the text.
func overlapScore(query, text map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for t := range query {
		if _, ok := text[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

// qualityScore rates text by length and structure. Very short chunks
// carry little context; very long ones dilute it. Headings and
// sentence-ending punctuation indicate well-formed prose.
func qualityScore(text string) float64 {
	length := utf8.RuneCountInString(text)

	var lengthScore float64
	switch {
	case length < 50:
		lengthScore = 0.3
	case length > 2000:
		lengthScore = 0.7
	default:
		lengthScore = 1.0
	}

	structureScore := 0.0
	if headingRegex.MatchString(text) {
		structureScore += 0.2
	}
	if strings.ContainsAny(text, "。!?") {
		structureScore += 0.3
	}

	score := lengthScore + structureScore
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	tokens := store.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
