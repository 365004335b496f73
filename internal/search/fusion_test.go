package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulldra/bookrag/internal/store"
)

func TestFuseBook_CombinesBothSources(t *testing.T) {
	// Given a chunk present in both result sets
	vec := []*store.VectorResult{
		{ID: "c1", Score: 0.9},
		{ID: "c2", Score: 0.45},
	}
	kw := []*store.BM25Result{
		{DocID: "c1", Score: 5.0, MatchedTerms: []string{"python"}},
	}

	results := fuseBook("b1", "Book One", 1.0, vec, kw, 0.7, 0.3, 10.0)
	require.Len(t, results, 2)

	byID := indexByChunk(results)

	// c1: semantic 0.9/0.9=1.0, keyword min(5/10,1)=0.5
	assert.InDelta(t, 0.7*1.0+0.3*0.5, byID["c1"].CombinedScore, 1e-9)
	assert.Equal(t, []string{"python"}, byID["c1"].MatchedTerms)

	// c2: semantic 0.45/0.9=0.5, no keyword side
	assert.InDelta(t, 0.7*0.5, byID["c2"].CombinedScore, 1e-9)
}

func TestFuseBook_MissingSideContributesZero(t *testing.T) {
	t.Run("keyword only", func(t *testing.T) {
		kw := []*store.BM25Result{{DocID: "c1", Score: 4.0}}

		results := fuseBook("b1", "Book One", 1.0, nil, kw, 0.7, 0.3, 10.0)

		require.Len(t, results, 1)
		assert.InDelta(t, 0.3*0.4, results[0].CombinedScore, 1e-9)
		assert.Zero(t, results[0].SemanticScore)
	})

	t.Run("vector only", func(t *testing.T) {
		vec := []*store.VectorResult{{ID: "c1", Score: 0.8}}

		results := fuseBook("b1", "Book One", 1.0, vec, nil, 0.7, 0.3, 10.0)

		require.Len(t, results, 1)
		assert.InDelta(t, 0.7, results[0].CombinedScore, 1e-9)
		assert.Zero(t, results[0].KeywordScore)
	})

	t.Run("both empty", func(t *testing.T) {
		assert.Nil(t, fuseBook("b1", "Book One", 1.0, nil, nil, 0.7, 0.3, 10.0))
	})
}

func TestFuseBook_KeywordScoreClamped(t *testing.T) {
	// Raw BM25 scores above the scale clamp to 1.0
	kw := []*store.BM25Result{{DocID: "c1", Score: 50.0}}

	results := fuseBook("b1", "Book One", 1.0, nil, kw, 0.7, 0.3, 10.0)

	require.Len(t, results, 1)
	assert.InDelta(t, 0.3, results[0].CombinedScore, 1e-9)
}

func TestFuseBook_BookWeightScalesCombinedScore(t *testing.T) {
	vec := []*store.VectorResult{{ID: "c1", Score: 0.5}}
	kw := []*store.BM25Result{{DocID: "c1", Score: 4.0}}

	weighted := fuseBook("b1", "Book One", 1.5, vec, kw, 0.7, 0.3, 10.0)
	require.Len(t, weighted, 1)

	// Raw scores stay unweighted; the weight lands on the combined
	// score after normalization so max-normalization cannot cancel it.
	assert.InDelta(t, 0.5, weighted[0].SemanticScore, 1e-9)
	assert.InDelta(t, 4.0, weighted[0].KeywordScore, 1e-9)
	assert.InDelta(t, 1.5*(0.7*1.0+0.3*0.4), weighted[0].CombinedScore, 1e-9)
	assert.InDelta(t, 1.5, weighted[0].BookWeight, 1e-9)
}

func TestFuseBook_BookWeightBiasesCrossBookRanking(t *testing.T) {
	// Two books with identical vector-only hits. The heavier book must
	// outrank the lighter one even though per-book max normalization
	// maps both top hits to the same semantic score.
	vec := []*store.VectorResult{{ID: "c1", Score: 0.8}}

	light := fuseBook("light", "", 1.0, vec, nil, 0.7, 0.3, 10.0)
	heavy := fuseBook("heavy", "", 1.5, vec, nil, 0.7, 0.3, 10.0)
	require.Len(t, light, 1)
	require.Len(t, heavy, 1)

	merged := append(light, heavy...)
	sortByCombined(merged)

	assert.Equal(t, "heavy", merged[0].BookID)
	assert.Greater(t, merged[0].CombinedScore, merged[1].CombinedScore)
}

func TestFuseBook_SemanticMonotonicity(t *testing.T) {
	// Shifting weight toward semantic cannot demote a result whose
	// semantic side dominates its keyword side
	vec := []*store.VectorResult{
		{ID: "semantic-heavy", Score: 0.9},
		{ID: "balanced", Score: 0.5},
	}
	kw := []*store.BM25Result{
		{DocID: "balanced", Score: 9.0},
	}

	rank := func(results []*SearchResult, id string) int {
		sortByCombined(results)
		for i, r := range results {
			if r.ChunkID == id {
				return i
			}
		}
		return -1
	}

	base := rank(fuseBook("b1", "", 1.0, vec, kw, 0.5, 0.5, 10.0), "semantic-heavy")
	shifted := rank(fuseBook("b1", "", 1.0, vec, kw, 0.7, 0.3, 10.0), "semantic-heavy")

	assert.LessOrEqual(t, shifted, base)
}

func TestSortByCombined_Deterministic(t *testing.T) {
	results := []*SearchResult{
		{BookID: "b2", ChunkID: "c1", CombinedScore: 0.5},
		{BookID: "b1", ChunkID: "c2", CombinedScore: 0.5},
		{BookID: "b1", ChunkID: "c1", CombinedScore: 0.5},
		{BookID: "b1", ChunkID: "c3", CombinedScore: 0.9},
	}

	sortByCombined(results)

	assert.Equal(t, "c3", results[0].ChunkID)
	assert.Equal(t, "b1", results[1].BookID)
	assert.Equal(t, "c1", results[1].ChunkID)
	assert.Equal(t, "c2", results[2].ChunkID)
	assert.Equal(t, "b2", results[3].BookID)
}

func indexByChunk(results []*SearchResult) map[string]*SearchResult {
	byID := make(map[string]*SearchResult, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	return byID
}
