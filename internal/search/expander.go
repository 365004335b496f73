package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/llm"
)

// Expansion bounds. MaxSearchQueries caps fan-out cost: each extra
// query is a full per-book hybrid search.
const (
	DefaultMaxSynonymVariants = 3
	DefaultMaxSearchQueries   = 5
	synonymQueriesForSearch   = 2
)

// synonymEntry pairs a query term with its near-synonyms. A slice, not
// a map, so variant order is stable across runs.
type synonymEntry struct {
	term     string
	synonyms []string
}

var synonymTable = []synonymEntry{
	{"方法", []string{"やり方", "手段", "手法", "アプローチ"}},
	{"理由", []string{"原因", "根拠", "要因", "背景"}},
	{"効果", []string{"結果", "影響", "作用", "メリット"}},
	{"問題", []string{"課題", "困った", "トラブル", "悩み"}},
	{"特徴", []string{"特色", "性質", "性格", "傾向"}},
	{"違い", []string{"差", "相違", "区別", "比較"}},
	{"使い方", []string{"利用法", "活用法", "操作法", "使用法"}},
	{"意味", []string{"定義", "概念", "内容", "説明"}},
}

// Expander produces query variants for multi-query retrieval.
// Synonym substitution is always available; the LLM paraphrase step is
// optional and degrades to nothing on failure or timeout.
type Expander struct {
	maxSynonymVariants int
	maxSearchQueries   int
	paraphraser        *llm.Paraphraser
	logger             *slog.Logger
}

// NewExpander builds an expander from config. The paraphraser may be
// nil; synonym expansion still works without it.
func NewExpander(cfg config.ExpansionConfig, paraphraser *llm.Paraphraser, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	maxVariants := cfg.MaxSynonymVariants
	if maxVariants <= 0 {
		maxVariants = DefaultMaxSynonymVariants
	}
	maxQueries := cfg.MaxQueries
	if maxQueries <= 0 {
		maxQueries = DefaultMaxSearchQueries
	}
	return &Expander{
		maxSynonymVariants: maxVariants,
		maxSearchQueries:   maxQueries,
		paraphraser:        paraphraser,
		logger:             logger,
	}
}

// Expand generates the query set to issue for one search. The original
// query always comes first in SearchQueries; the paraphrase step is the
// only network call and its failure only costs the extra variant.
func (e *Expander) Expand(ctx context.Context, query string) Expansion {
	variants := generateSynonymVariants(query)
	if len(variants) > e.maxSynonymVariants {
		variants = variants[:e.maxSynonymVariants]
	}

	exp := Expansion{
		Original:        query,
		SynonymVariants: variants,
		Entities:        ExtractEntities(query),
	}

	searchQueries := []string{query}
	n := synonymQueriesForSearch
	if n > len(variants) {
		n = len(variants)
	}
	searchQueries = append(searchQueries, variants[:n]...)

	if e.paraphraser != nil {
		variant, err := e.paraphraser.Paraphrase(ctx, query)
		if err != nil {
			e.logger.Debug("paraphrase degraded", "error", err)
		} else if variant != "" {
			exp.LLMVariant = variant
			searchQueries = append(searchQueries, variant)
		}
	}

	exp.SearchQueries = dedupeQueries(searchQueries, e.maxSearchQueries)
	return exp
}

// generateSynonymVariants substitutes each matching table term with its
// synonyms, producing one variant query per synonym. All occurrences of
// the term are replaced at once.
func generateSynonymVariants(query string) []string {
	var variants []string
	for _, entry := range synonymTable {
		if !strings.Contains(query, entry.term) {
			continue
		}
		for _, syn := range entry.synonyms {
			variant := strings.ReplaceAll(query, entry.term, syn)
			if variant != query {
				variants = append(variants, variant)
			}
		}
	}
	return variants
}

func dedupeQueries(queries []string, limit int) []string {
	seen := make(map[string]struct{}, len(queries))
	deduped := make([]string, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		deduped = append(deduped, q)
		if len(deduped) >= limit {
			break
		}
	}
	return deduped
}
