package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelevanceWeightTitleMatch(t *testing.T) {
	meta := &BookMeta{ID: "python-primer", Title: "Python Primer"}
	w := RelevanceWeight(meta, "python 入門", DefaultWeightingParams())
	assert.InDelta(t, 1.3, w, 1e-9)
}

func TestRelevanceWeightAuthorMatch(t *testing.T) {
	meta := &BookMeta{ID: "essays", Title: "随筆集", Author: "夏目漱石"}
	w := RelevanceWeight(meta, "夏目漱石 文体", DefaultWeightingParams())
	assert.InDelta(t, 1.2, w, 1e-9)
}

func TestRelevanceWeightYearBonuses(t *testing.T) {
	params := DefaultWeightingParams()

	recent := &BookMeta{ID: "a", Title: "歴史", Year: 2022}
	assert.InDelta(t, 1.1, RelevanceWeight(recent, "料理", params), 1e-9)

	historical := &BookMeta{ID: "b", Title: "歴史", Year: 1950}
	assert.InDelta(t, 1.1, RelevanceWeight(historical, "料理", params), 1e-9)

	between := &BookMeta{ID: "c", Title: "歴史", Year: 2000}
	assert.InDelta(t, 1.0, RelevanceWeight(between, "料理", params), 1e-9)

	unknown := &BookMeta{ID: "d", Title: "歴史"}
	assert.InDelta(t, 1.0, RelevanceWeight(unknown, "料理", params), 1e-9)
}

func TestRelevanceWeightBonusesStack(t *testing.T) {
	meta := &BookMeta{ID: "go-book", Title: "Go 実践入門", Author: "Go Team", Year: 2023}
	w := RelevanceWeight(meta, "go 並行処理", DefaultWeightingParams())
	assert.InDelta(t, 1.6, w, 1e-9)
}

func TestRelevanceWeightCapped(t *testing.T) {
	params := DefaultWeightingParams()
	params.TitleMatchBonus = 1.5
	meta := &BookMeta{ID: "a", Title: "python", Author: "python", Year: 2023}
	w := RelevanceWeight(meta, "python", params)
	assert.InDelta(t, DefaultMaxBookWeight, w, 1e-9)
}

func TestRelevanceWeightNilMeta(t *testing.T) {
	assert.InDelta(t, 1.0, RelevanceWeight(nil, "python", DefaultWeightingParams()), 1e-9)
}
