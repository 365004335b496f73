package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBleveIndex(t *testing.T, path string) *BleveKeywordIndex {
	t.Helper()
	idx, err := NewBleveKeywordIndex(path, DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveKeywordIndex_Search(t *testing.T) {
	idx := newTestBleveIndex(t, "")
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "c1", Content: "hybrid retrieval combines two signals"},
		{ID: "c2", Content: "今日は晴れ。明日は雨。"},
		{ID: "c3", Content: "nothing relevant here"},
	}))

	t.Run("english match", func(t *testing.T) {
		results, err := idx.Search(ctx, "hybrid", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c1", results[0].DocID)
		assert.Contains(t, results[0].MatchedTerms, "hybrid")
	})

	t.Run("japanese segment match", func(t *testing.T) {
		results, err := idx.Search(ctx, "明日は雨", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c2", results[0].DocID)
	})

	t.Run("empty query", func(t *testing.T) {
		results, err := idx.Search(ctx, "   ", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestBleveKeywordIndex_Delete(t *testing.T) {
	idx := newTestBleveIndex(t, "")
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "keep", Content: "persistent content"},
		{ID: "gone", Content: "ephemeral content"},
	}))

	require.NoError(t, idx.Delete(ctx, []string{"gone"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)

	assert.Equal(t, 1, idx.Stats().DocumentCount)
}

func TestBleveKeywordIndex_Persistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book1.bleve")
	ctx := context.Background()

	// Given a disk-backed index with one document
	idx, err := NewBleveKeywordIndex(path, DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "c1", Content: "durable content survives restarts"},
	}))
	require.NoError(t, idx.Close())

	// When reopening the same path
	reopened := newTestBleveIndex(t, path)

	// Then the document is still searchable
	results, err := reopened.Search(ctx, "durable", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].DocID)
}

func TestBleveKeywordIndex_ClosedOperations(t *testing.T) {
	idx, err := NewBleveKeywordIndex("", DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.Error(t, idx.Index(context.Background(), []*Document{{ID: "x", Content: "y"}}))
	_, err = idx.Search(context.Background(), "query", 10)
	assert.Error(t, err)
	require.NoError(t, idx.Close())
}
