package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanStrategy_Defaults(t *testing.T) {
	// A general medium-specificity query keeps the baseline
	strategy := PlanStrategy(QueryAnalysis{Type: QueryGeneral, Specificity: SpecificityMedium})

	assert.Equal(t, 10, strategy.TopK)
	assert.InDelta(t, 0.7, strategy.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.3, strategy.KeywordWeight, 1e-9)
	assert.InDelta(t, 0.2, strategy.DiversityWeight, 1e-9)
	assert.True(t, strategy.Rerank)
	assert.True(t, strategy.Compress)
	assert.Equal(t, 8000, strategy.MaxContextLength)
}

func TestPlanStrategy_QueryTypes(t *testing.T) {
	t.Run("factual favors keywords with fewer results", func(t *testing.T) {
		strategy := PlanStrategy(QueryAnalysis{Type: QueryFactual, Specificity: SpecificityMedium})

		assert.Equal(t, 5, strategy.TopK)
		assert.InDelta(t, 0.5, strategy.SemanticWeight, 1e-9)
		assert.InDelta(t, 0.5, strategy.KeywordWeight, 1e-9)
		assert.InDelta(t, 0.1, strategy.DiversityWeight, 1e-9)
	})

	t.Run("procedural widens retrieval and context", func(t *testing.T) {
		strategy := PlanStrategy(QueryAnalysis{Type: QueryProcedural, Specificity: SpecificityMedium})

		assert.Equal(t, 15, strategy.TopK)
		assert.Equal(t, 10000, strategy.MaxContextLength)
		assert.InDelta(t, 0.3, strategy.DiversityWeight, 1e-9)
	})

	t.Run("explanatory leans semantic", func(t *testing.T) {
		strategy := PlanStrategy(QueryAnalysis{Type: QueryExplanatory, Specificity: SpecificityMedium})

		assert.InDelta(t, 0.8, strategy.SemanticWeight, 1e-9)
		assert.InDelta(t, 0.2, strategy.KeywordWeight, 1e-9)
	})
}

func TestPlanStrategy_Specificity(t *testing.T) {
	t.Run("high specificity narrows and shifts to keywords", func(t *testing.T) {
		strategy := PlanStrategy(QueryAnalysis{Type: QueryGeneral, Specificity: SpecificityHigh})

		assert.Equal(t, 8, strategy.TopK)
		assert.InDelta(t, 0.4, strategy.KeywordWeight, 1e-9)
		assert.InDelta(t, 0.6, strategy.SemanticWeight, 1e-9)
	})

	t.Run("low specificity widens and diversifies", func(t *testing.T) {
		strategy := PlanStrategy(QueryAnalysis{Type: QueryGeneral, Specificity: SpecificityLow})

		assert.Equal(t, 12, strategy.TopK)
		assert.InDelta(t, 0.3, strategy.DiversityWeight, 1e-9)
	})

	t.Run("factual top_k survives high specificity", func(t *testing.T) {
		// min(5, 8) keeps the smaller factual value
		strategy := PlanStrategy(QueryAnalysis{Type: QueryFactual, Specificity: SpecificityHigh})

		assert.Equal(t, 5, strategy.TopK)
	})
}

func TestPlanStrategy_ComparisonWinsLast(t *testing.T) {
	// Comparison overrides everything set before it
	strategy := PlanStrategy(QueryAnalysis{
		Type:        QueryFactual,
		Specificity: SpecificityHigh,
		Comparison:  true,
	})

	assert.Equal(t, 15, strategy.TopK)
	assert.InDelta(t, 0.4, strategy.DiversityWeight, 1e-9)
}
