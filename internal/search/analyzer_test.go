package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeQuery_Type(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{"explanatory from reason marker", "この技術が普及した理由", QueryExplanatory},
		{"procedural from method marker", "環境を構築する方法", QueryProcedural},
		{"factual from interrogative", "著者は誰", QueryFactual},
		{"general when no marker", "機械学習", QueryGeneral},
		{"factual overrides procedural", "インストール方法は何", QueryFactual},
		{"procedural overrides explanatory", "どうやって設定する", QueryProcedural},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := AnalyzeQuery(tt.query)
			assert.Equal(t, tt.want, analysis.Type)
		})
	}
}

func TestAnalyzeQuery_Intent(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Intent
	}{
		{"procedural asks for instruction", "環境を構築する方法", IntentInstruction},
		{"factual asks for a fact", "著者は誰", IntentFact},
		{"explanatory asks for explanation", "この技術が普及した理由", IntentExplanation},
		{"general stays general", "機械学習", IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := AnalyzeQuery(tt.query)
			assert.Equal(t, tt.want, analysis.Intent)
		})
	}
}

func TestAnalyzeQuery_Flags(t *testing.T) {
	t.Run("comparison detected", func(t *testing.T) {
		analysis := AnalyzeQuery("AとBの違い")
		assert.True(t, analysis.Comparison)
	})

	t.Run("temporal detected", func(t *testing.T) {
		analysis := AnalyzeQuery("この本はいつ出版された")
		assert.True(t, analysis.Temporal)
	})

	t.Run("plain query has no flags", func(t *testing.T) {
		analysis := AnalyzeQuery("機械学習")
		assert.False(t, analysis.Comparison)
		assert.False(t, analysis.Temporal)
	})
}

func TestAnalyzeQuery_Specificity(t *testing.T) {
	t.Run("many content terms means high", func(t *testing.T) {
		// Four multi-character kanji terms
		analysis := AnalyzeQuery("機械学習 自然言語 処理技術 深層学習")
		assert.Equal(t, SpecificityHigh, analysis.Specificity)
	})

	t.Run("no content terms means low", func(t *testing.T) {
		analysis := AnalyzeQuery("hello world")
		assert.Equal(t, SpecificityLow, analysis.Specificity)
	})

	t.Run("a couple of terms means medium", func(t *testing.T) {
		analysis := AnalyzeQuery("機械学習の入門")
		assert.Equal(t, SpecificityMedium, analysis.Specificity)
	})
}

func TestExtractEntities(t *testing.T) {
	t.Run("kanji compounds become nouns", func(t *testing.T) {
		entities := ExtractEntities("機械学習の技術")
		assert.Contains(t, entities.Nouns, "機械学習")
		assert.Contains(t, entities.Nouns, "技術")
	})

	t.Run("single characters dropped", func(t *testing.T) {
		entities := ExtractEntities("本を読む")
		assert.NotContains(t, entities.Nouns, "本")
	})

	t.Run("verb endings become actions", func(t *testing.T) {
		entities := ExtractEntities("はじめる")
		assert.Contains(t, entities.Actions, "はじめる")
	})
}
