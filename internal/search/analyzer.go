package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Intent marker word sets. Matching is substring-based on the lowercased
// query; later checks overwrite earlier ones, so a query carrying both
// procedural and factual markers classifies as factual.
var (
	explanatoryMarkers = []string{"どう", "なぜ", "何故", "理由"}
	proceduralMarkers  = []string{"方法", "やり方", "手順", "どうやって"}
	factualMarkers     = []string{"何", "どれ", "誰", "いつ", "どこ"}
	comparisonMarkers  = []string{"違い", "比較", "差", "対比"}
	temporalMarkers    = []string{"いつ", "時期", "期間", "前", "後", "昔", "今"}
)

var (
	contentTermRegex = regexp.MustCompile(`[一-龯]{2,}`)
	nounRegex        = regexp.MustCompile(`[一-龯]+`)
	actionRegex      = regexp.MustCompile(`[ぁ-ん]+る|[ぁ-ん]+す|[ぁ-ん]+た`)
	adjectiveRegex   = regexp.MustCompile(`[ぁ-ん]+い|[ぁ-ん]+な`)
)

// AnalyzeQuery runs pattern-based intent analysis on a query.
// Pure function: no I/O, deterministic for a given input.
func AnalyzeQuery(query string) QueryAnalysis {
	analysis := QueryAnalysis{
		Type:        QueryGeneral,
		Specificity: SpecificityMedium,
	}

	lower := strings.ToLower(query)

	if containsAny(lower, explanatoryMarkers) {
		analysis.Type = QueryExplanatory
	}
	if containsAny(lower, proceduralMarkers) {
		analysis.Type = QueryProcedural
	}
	if containsAny(lower, factualMarkers) {
		analysis.Type = QueryFactual
	}

	analysis.Intent = intentFor(analysis.Type)
	analysis.Comparison = containsAny(lower, comparisonMarkers)
	analysis.Temporal = containsAny(lower, temporalMarkers)

	// Multi-character kanji terms indicate how concrete the query is.
	contentTerms := len(contentTermRegex.FindAllString(query, -1))
	switch {
	case contentTerms > 3:
		analysis.Specificity = SpecificityHigh
	case contentTerms < 1:
		analysis.Specificity = SpecificityLow
	}

	analysis.Entities = ExtractEntities(query)

	return analysis
}

// ExtractEntities pulls terms from a query by rough part of speech:
// kanji compounds as nouns, hiragana verb and adjective endings for
// actions and adjectives. Single-character matches are dropped.
func ExtractEntities(query string) Entities {
	return Entities{
		Nouns:      filterShortTerms(nounRegex.FindAllString(query, -1)),
		Actions:    filterShortTerms(actionRegex.FindAllString(query, -1)),
		Adjectives: filterShortTerms(adjectiveRegex.FindAllString(query, -1)),
	}
}

// intentFor maps a question shape to the answer shape it asks for.
func intentFor(t QueryType) Intent {
	switch t {
	case QueryFactual:
		return IntentFact
	case QueryProcedural:
		return IntentInstruction
	case QueryExplanatory:
		return IntentExplanation
	default:
		return IntentGeneral
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func filterShortTerms(terms []string) []string {
	filtered := terms[:0]
	for _, t := range terms {
		if utf8.RuneCountInString(t) > 1 {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
