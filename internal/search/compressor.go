package search

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Compression limits.
const (
	maxResultsPerBook    = 3
	longTextThreshold    = 400 // Runes before sentence extraction kicks in
	maxExtractedSentence = 3
	minSentenceLength    = 10
	fallbackSnippetRunes = 500

	highRelevanceThreshold = 0.7
	midRelevanceThreshold  = 0.4

	// highWeightIndicatorMin is the book weight above which Format
	// marks a book as highly relevant.
	highWeightIndicatorMin = 1.1
)

const bookSeparator = "\n\n---\n\n"

var sentenceSplitRegex = regexp.MustCompile(`[。！？]`)

// Compressor shrinks and formats retrieved chunks into a bounded
// context string, grouped by book.
type Compressor struct{}

// NewCompressor returns a context compressor.
func NewCompressor() *Compressor {
	return &Compressor{}
}

// Compress formats results into a context string of at most roughly
// maxLength characters. Results are grouped by book in the order their
// books first appear; each group keeps at most three results, and long
// texts are reduced to their most query-relevant sentences. Snippets
// are appended until the budget runs out.
func (c *Compressor) Compress(results []*SearchResult, query string, maxLength int) string {
	if len(results) == 0 {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxContextLength
	}

	groups, order := groupByBook(results)

	var sections []string
	currentLength := 0

	for _, title := range order {
		if currentLength >= maxLength {
			break
		}

		bookResults := groups[title]
		if len(bookResults) > maxResultsPerBook {
			bookResults = bookResults[:maxResultsPerBook]
		}

		var parts []string
		for _, r := range bookResults {
			if currentLength >= maxLength {
				break
			}

			text := r.Text
			if utf8.RuneCountInString(text) > longTextThreshold {
				text = extractKeySentences(text, query)
			}

			formatted := fmt.Sprintf("[%s] %s", relevanceLabel(r.Score()), text)
			parts = append(parts, formatted)
			currentLength += utf8.RuneCountInString(formatted)
		}

		if len(parts) > 0 {
			sections = append(sections, fmt.Sprintf("**%s**\n%s", title, strings.Join(parts, "\n\n")))
		}
	}

	return strings.Join(sections, bookSeparator)
}

// FormatSimple renders results without compression or grouping: one
// block per result with its book title and relevance score, in the
// order given.
func (c *Compressor) FormatSimple(results []*SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		title := r.BookTitle
		if title == "" {
			title = r.BookID
		}
		parts = append(parts, fmt.Sprintf("**%s** (関連度: %.2f)\n%s", title, r.Score(), r.Text))
	}
	return strings.Join(parts, bookSeparator)
}

// Format renders results without compression: grouped by book, ordered
// by book weight descending, each chunk annotated with its score.
// Books weighted well above neutral get a flame marker.
func (c *Compressor) Format(results []*SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	groups, order := groupByBook(results)

	weights := make(map[string]float64, len(order))
	for _, title := range order {
		weights[title] = groups[title][0].BookWeight
	}
	sort.SliceStable(order, func(i, j int) bool {
		return weights[order[i]] > weights[order[j]]
	})

	var sections []string
	for _, title := range order {
		indicator := ""
		if weights[title] > highWeightIndicatorMin {
			indicator = " 🔥"
		}

		parts := make([]string, 0, len(groups[title]))
		for _, r := range groups[title] {
			parts = append(parts, fmt.Sprintf("%s (類似度: %.2f)", r.Text, r.Score()))
		}
		sections = append(sections, fmt.Sprintf("**%s**%s\n%s", title, indicator, strings.Join(parts, "\n\n")))
	}

	return strings.Join(sections, bookSeparator)
}

// groupByBook buckets results by book title, preserving the order in
// which books first appear.
func groupByBook(results []*SearchResult) (map[string][]*SearchResult, []string) {
	groups := make(map[string][]*SearchResult)
	var order []string
	for _, r := range results {
		title := r.BookTitle
		if title == "" {
			title = r.BookID
		}
		if _, ok := groups[title]; !ok {
			order = append(order, title)
		}
		groups[title] = append(groups[title], r)
	}
	return groups, order
}

// extractKeySentences reduces a long text to its sentences most
// relevant to the query, ranked by query-token overlap with ties going
// to earlier sentences. Falls back to a leading snippet when no
// sentence scores.
func extractKeySentences(text, query string) string {
	sentences := sentenceSplitRegex.Split(text, -1)
	queryTokens := tokenSet(query)

	type scored struct {
		score    float64
		sentence string
	}
	var candidates []scored

	for _, s := range sentences {
		trimmed := strings.TrimSpace(s)
		if utf8.RuneCountInString(trimmed) < minSentenceLength {
			continue
		}
		sentenceTokens := tokenSet(trimmed)
		if len(queryTokens) == 0 || len(sentenceTokens) == 0 {
			continue
		}
		candidates = append(candidates, scored{
			score:    overlapScore(queryTokens, sentenceTokens),
			sentence: trimmed,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := len(candidates)
	if n > maxExtractedSentence {
		n = maxExtractedSentence
	}
	if n == 0 {
		return truncateRunes(text, fallbackSnippetRunes)
	}

	top := make([]string, 0, n)
	for _, c := range candidates[:n] {
		top = append(top, c.sentence)
	}
	return strings.Join(top, "。") + "。"
}

func relevanceLabel(score float64) string {
	switch {
	case score > highRelevanceThreshold:
		return "高関連"
	case score > midRelevanceThreshold:
		return "中関連"
	default:
		return "低関連"
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
