package library

import (
	"strings"
)

// Year thresholds for publication-date bonuses.
const (
	recentYearAfter        = 2010
	historicalYearBefore   = 1990
	DefaultMaxBookWeight   = 2.0
	defaultTitleBonus      = 0.3
	defaultAuthorBonus     = 0.2
	defaultRecentBonus     = 0.1
	defaultHistoricalBonus = 0.1
)

// WeightingParams tune the catalog-driven relevance multiplier.
type WeightingParams struct {
	TitleMatchBonus     float64
	AuthorMatchBonus    float64
	RecentBookBonus     float64
	HistoricalBookBonus float64
	MaxWeight           float64
}

// DefaultWeightingParams returns the standard bonuses with the 2.0 cap.
func DefaultWeightingParams() WeightingParams {
	return WeightingParams{
		TitleMatchBonus:     defaultTitleBonus,
		AuthorMatchBonus:    defaultAuthorBonus,
		RecentBookBonus:     defaultRecentBonus,
		HistoricalBookBonus: defaultHistoricalBonus,
		MaxWeight:           DefaultMaxBookWeight,
	}
}

// RelevanceWeight computes a book's score multiplier for a query from
// catalog metadata: a bonus when any query word appears in the title or
// author, and a bonus for notably recent or historical publication
// years. The result never exceeds MaxWeight, so metadata can bias
// ranking without dominating it. Unknown metadata yields 1.0.
func RelevanceWeight(meta *BookMeta, query string, params WeightingParams) float64 {
	if meta == nil {
		return 1.0
	}

	weight := 1.0
	words := strings.Fields(strings.ToLower(query))

	if title := strings.ToLower(meta.Title); title != "" && anyWordIn(title, words) {
		weight += params.TitleMatchBonus
	}
	if author := strings.ToLower(meta.Author); author != "" && anyWordIn(author, words) {
		weight += params.AuthorMatchBonus
	}

	switch {
	case meta.Year > recentYearAfter:
		weight += params.RecentBookBonus
	case meta.Year > 0 && meta.Year < historicalYearBefore:
		weight += params.HistoricalBookBonus
	}

	if weight > params.MaxWeight {
		weight = params.MaxWeight
	}
	return weight
}

func anyWordIn(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
