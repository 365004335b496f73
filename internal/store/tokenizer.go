package store

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// proseTokenRegex matches runs of Japanese (hiragana, katakana, the
// long vowel mark, kanji) and alphanumeric characters. Punctuation and
// whitespace act as separators.
var proseTokenRegex = regexp.MustCompile(`[ぁ-んァ-ヴー一-龯a-zA-Z0-9]+`)

// Tokenize splits prose into lowercase tokens for BM25 indexing.
// Single-character tokens are dropped: they are mostly particles in
// Japanese and noise in English.
func Tokenize(text string) []string {
	matches := proseTokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if utf8.RuneCountInString(m) < 2 {
			continue
		}
		tokens = append(tokens, strings.ToLower(m))
	}

	return tokens
}

// TokenizeFiltered tokenizes text and drops stop words.
func TokenizeFiltered(text string, stopWords map[string]struct{}) []string {
	return FilterStopWords(Tokenize(text), stopWords)
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	if len(stopWords) == 0 {
		return tokens
	}
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
