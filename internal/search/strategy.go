package search

// Base strategy values applied before intent-specific adjustments.
const (
	DefaultTopK             = 10
	DefaultSemanticWeight   = 0.7
	DefaultKeywordWeight    = 0.3
	DefaultDiversityWeight  = 0.2
	DefaultMaxContextLength = 8000
)

// DefaultStrategy returns the baseline search strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		TopK:             DefaultTopK,
		SemanticWeight:   DefaultSemanticWeight,
		KeywordWeight:    DefaultKeywordWeight,
		DiversityWeight:  DefaultDiversityWeight,
		Rerank:           true,
		Compress:         true,
		MaxContextLength: DefaultMaxContextLength,
	}
}

// PlanStrategy maps a query analysis to concrete search parameters.
// Adjustments apply in a fixed order: query type, then specificity,
// then the comparison override, which always wins.
func PlanStrategy(analysis QueryAnalysis) Strategy {
	strategy := DefaultStrategy()

	switch analysis.Type {
	case QueryFactual:
		// Factual lookups reward exact term matches.
		strategy.SemanticWeight = 0.5
		strategy.KeywordWeight = 0.5
		strategy.TopK = 5
		strategy.DiversityWeight = 0.1
	case QueryProcedural:
		// Step-by-step answers need broader context.
		strategy.TopK = 15
		strategy.MaxContextLength = 10000
		strategy.DiversityWeight = 0.3
	case QueryExplanatory:
		strategy.SemanticWeight = 0.8
		strategy.KeywordWeight = 0.2
	}

	switch analysis.Specificity {
	case SpecificityHigh:
		if strategy.TopK > 8 {
			strategy.TopK = 8
		}
		strategy.KeywordWeight += 0.1
		strategy.SemanticWeight -= 0.1
	case SpecificityLow:
		if strategy.TopK < 12 {
			strategy.TopK = 12
		}
		strategy.DiversityWeight += 0.1
	}

	if analysis.Comparison {
		strategy.DiversityWeight = 0.4
		strategy.TopK = 15
	}

	return strategy
}
