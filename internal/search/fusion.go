package search

import (
	"sort"

	"github.com/bulldra/bookrag/internal/store"
)

// DefaultKeywordScale divides raw BM25 scores before clamping to [0,1].
// BM25 scores are unbounded while semantic similarity lives in [0,1],
// so keyword scores need an empirical scale correction. Tunable via
// config, not a law.
const DefaultKeywordScale = 10.0

// fuseBook combines one book's vector and keyword candidates into
// scored results. Raw scores are normalized first, semantic by the set
// maximum and keyword by min(score/scale, 1), and bookWeight scales the
// combined score afterwards so the bias survives normalization and
// shifts cross-book ranking. A chunk present in only one set
// contributes 0 for the missing side.
func fuseBook(
	bookID, bookTitle string,
	bookWeight float64,
	vec []*store.VectorResult,
	kw []*store.BM25Result,
	semanticWeight, keywordWeight, keywordScale float64,
) []*SearchResult {
	if len(vec) == 0 && len(kw) == 0 {
		return nil
	}
	if keywordScale <= 0 {
		keywordScale = DefaultKeywordScale
	}

	combined := make(map[string]*SearchResult, len(vec)+len(kw))
	order := make([]string, 0, len(vec)+len(kw))

	for _, v := range vec {
		combined[v.ID] = &SearchResult{
			BookID:        bookID,
			BookTitle:     bookTitle,
			ChunkID:       v.ID,
			SemanticScore: float64(v.Score),
			BookWeight:    bookWeight,
		}
		order = append(order, v.ID)
	}

	for _, k := range kw {
		if r, ok := combined[k.DocID]; ok {
			r.KeywordScore = k.Score
			r.MatchedTerms = k.MatchedTerms
			continue
		}
		combined[k.DocID] = &SearchResult{
			BookID:       bookID,
			BookTitle:    bookTitle,
			ChunkID:      k.DocID,
			KeywordScore: k.Score,
			MatchedTerms: k.MatchedTerms,
			BookWeight:   bookWeight,
		}
		order = append(order, k.DocID)
	}

	maxSemantic := 0.0
	for _, id := range order {
		if s := combined[id].SemanticScore; s > maxSemantic {
			maxSemantic = s
		}
	}

	results := make([]*SearchResult, 0, len(order))
	for _, id := range order {
		r := combined[id]

		semanticNorm := 0.0
		if maxSemantic > 0 {
			semanticNorm = r.SemanticScore / maxSemantic
		}

		keywordNorm := 0.0
		if r.KeywordScore > 0 {
			keywordNorm = r.KeywordScore / keywordScale
			if keywordNorm > 1.0 {
				keywordNorm = 1.0
			}
		}

		r.CombinedScore = bookWeight * (semanticWeight*semanticNorm + keywordWeight*keywordNorm)
		results = append(results, r)
	}

	return results
}

// sortByCombined orders results by combined score descending, breaking
// ties by book ID then chunk ID so output is deterministic.
func sortByCombined(results []*SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		if results[i].BookID != results[j].BookID {
			return results[i].BookID < results[j].BookID
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}
