package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor_GroupsByBook(t *testing.T) {
	results := []*SearchResult{
		{BookID: "b1", BookTitle: "入門書", Text: "最初の説明です。", CombinedScore: 0.8},
		{BookID: "b2", BookTitle: "実践書", Text: "応用の説明です。", CombinedScore: 0.6},
		{BookID: "b1", BookTitle: "入門書", Text: "追加の説明です。", CombinedScore: 0.5},
	}

	context := NewCompressor().Compress(results, "説明", 8000)

	// Sections appear in first-seen book order, separated
	require.Contains(t, context, "**入門書**")
	require.Contains(t, context, "**実践書**")
	assert.Less(t, strings.Index(context, "**入門書**"), strings.Index(context, "**実践書**"))
	assert.Contains(t, context, "\n\n---\n\n")
}

func TestCompressor_RelevanceLabels(t *testing.T) {
	results := []*SearchResult{
		{BookID: "b1", BookTitle: "本", Text: "高いスコアの文章です。", CombinedScore: 0.9},
		{BookID: "b1", BookTitle: "本", Text: "中間のスコアの文章です。", CombinedScore: 0.5},
		{BookID: "b1", BookTitle: "本", Text: "低いスコアの文章です。", CombinedScore: 0.2},
	}

	context := NewCompressor().Compress(results, "文章", 8000)

	assert.Contains(t, context, "[高関連] 高いスコアの文章です。")
	assert.Contains(t, context, "[中関連] 中間のスコアの文章です。")
	assert.Contains(t, context, "[低関連] 低いスコアの文章です。")
}

func TestCompressor_RerankScorePreferredForLabel(t *testing.T) {
	results := []*SearchResult{
		{BookID: "b1", BookTitle: "本", Text: "再ランク済みの文章です。", CombinedScore: 0.2, RerankScore: 0.9},
	}

	context := NewCompressor().Compress(results, "文章", 8000)

	assert.Contains(t, context, "[高関連]")
}

func TestCompressor_LimitsResultsPerBook(t *testing.T) {
	var results []*SearchResult
	for _, text := range []string{"一つ目の説明です。", "二つ目の説明です。", "三つ目の説明です。", "四つ目の説明です。"} {
		results = append(results, &SearchResult{BookID: "b1", BookTitle: "本", Text: text, CombinedScore: 0.5})
	}

	context := NewCompressor().Compress(results, "説明", 8000)

	assert.Contains(t, context, "三つ目")
	assert.NotContains(t, context, "四つ目")
}

func TestCompressor_RespectsBudget(t *testing.T) {
	long := strings.Repeat("あ", 120)
	var results []*SearchResult
	for i := 0; i < 3; i++ {
		results = append(results, &SearchResult{
			BookID: "b" + string(rune('1'+i)), BookTitle: "本" + string(rune('1'+i)),
			Text: long, CombinedScore: 0.5,
		})
	}

	context := NewCompressor().Compress(results, "query", 100)

	// The first snippet exhausts the budget, so later groups are dropped
	assert.Contains(t, context, "**本1**")
	assert.NotContains(t, context, "**本2**")
	assert.Less(t, utf8.RuneCountInString(context), 300)
}

func TestCompressor_LongTextReducedToKeySentences(t *testing.T) {
	filler := strings.Repeat("これは長い補足の段落でありとくに要点とは関係ない内容が続きます。", 15)
	text := "search engine の仕組みをこの章で詳しく説明します。" + filler

	results := []*SearchResult{
		{BookID: "b1", BookTitle: "本", Text: text, CombinedScore: 0.8},
	}

	context := NewCompressor().Compress(results, "search engine", 8000)

	// The query-relevant sentence survives, the bulk does not
	assert.Contains(t, context, "search engine の仕組みをこの章で詳しく説明します")
	assert.Less(t, utf8.RuneCountInString(context), utf8.RuneCountInString(text))
}

func TestCompressor_EmptyInput(t *testing.T) {
	assert.Empty(t, NewCompressor().Compress(nil, "query", 8000))
}

func TestExtractKeySentences(t *testing.T) {
	t.Run("ranks by query overlap", func(t *testing.T) {
		text := "今日はとても良い天気でした。python の基礎文法をここで詳しく学びます。夕食は家族とカレーを食べました。"

		extracted := extractKeySentences(text, "python")

		assert.True(t, strings.HasPrefix(extracted, "python の基礎文法をここで詳しく学びます"))
		assert.True(t, strings.HasSuffix(extracted, "。"))
	})

	t.Run("short sentences skipped", func(t *testing.T) {
		text := "短い文。python の基礎をこの章で詳しく学びます。"

		extracted := extractKeySentences(text, "python")

		assert.NotContains(t, extracted, "短い文")
	})

	t.Run("falls back to leading snippet", func(t *testing.T) {
		// No sentence terminator at all
		text := strings.Repeat("a", 600)

		extracted := extractKeySentences(text, "無関係")

		assert.Equal(t, 500, utf8.RuneCountInString(extracted))
	})
}

func TestCompressor_FormatSimple(t *testing.T) {
	results := []*SearchResult{
		{BookID: "b1", BookTitle: "入門書", Text: "最初の本文。", CombinedScore: 0.85},
		{BookID: "b2", Text: "二番目の本文。", CombinedScore: 0.40},
	}

	out := NewCompressor().FormatSimple(results)

	assert.Contains(t, out, "**入門書** (関連度: 0.85)\n最初の本文。")
	// Missing title falls back to the book ID
	assert.Contains(t, out, "**b2** (関連度: 0.40)\n二番目の本文。")
	assert.Contains(t, out, "\n\n---\n\n")
	assert.Empty(t, NewCompressor().FormatSimple(nil))
}

func TestCompressor_Format(t *testing.T) {
	results := []*SearchResult{
		{BookID: "b1", BookTitle: "軽い本", Text: "通常の説明。", CombinedScore: 0.50, BookWeight: 1.0},
		{BookID: "b2", BookTitle: "重い本", Text: "重要な説明。", CombinedScore: 0.80, BookWeight: 1.5},
	}

	out := NewCompressor().Format(results)

	// Heavier book first, flame marker on it, scores annotated
	assert.Less(t, strings.Index(out, "**重い本**"), strings.Index(out, "**軽い本**"))
	assert.Contains(t, out, "**重い本** 🔥")
	assert.NotContains(t, out, "**軽い本** 🔥")
	assert.Contains(t, out, "(類似度: 0.80)")
	assert.Contains(t, out, "(類似度: 0.50)")
}
