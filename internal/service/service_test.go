package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulldra/bookrag/internal/chunk"
	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/embed"
	ragerrors "github.com/bulldra/bookrag/internal/errors"
	"github.com/bulldra/bookrag/internal/search"
	"github.com/bulldra/bookrag/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Library.BooksDir = filepath.Join(t.TempDir(), "books")
	cfg.Library.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.Embeddings.Provider = "static"
	cfg.Workers.IndexWorkers = 2
	// Small windows so the short fixture books span several chunks.
	cfg.Chunking.ChunkSize = 80
	cfg.Chunking.Overlap = 10
	cfg.Chunking.BoundarySearch = 20
	require.NoError(t, os.MkdirAll(cfg.Library.BooksDir, 0o755))
	return cfg
}

func writeTestBook(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	path := filepath.Join(cfg.Library.BooksDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

const pythonBookBody = "# Python 入門\n\n" +
	"python は読みやすい文法を持つプログラミング言語です。変数や関数の定義が簡潔に書けます。\n\n" +
	"python の繰り返し処理は for 文で書きます。リストや辞書を順に処理できます。\n"

const sqlBookBody = "# SQL ハンドブック\n\n" +
	"SQL はリレーショナルデータベースを操作する言語です。select 文で行を取得します。\n\n" +
	"結合は join 句で表現します。内部結合と外部結合を使い分けます。\n"

func TestIndexLibraryAndSearch(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)
	writeTestBook(t, cfg, "sql-handbook.md", sqlBookBody)

	svc := openService(t, cfg)
	report, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, report.Indexed, 2)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"python-primer", "sql-handbook"}, svc.Books())

	results, err := svc.Search(context.Background(), "python", search.Options{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "python-primer", results[0].BookID)
	assert.NotEmpty(t, results[0].Text)
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	reopened := openService(t, cfg)
	assert.True(t, reopened.HasBook("python-primer"))

	results, err := reopened.Search(context.Background(), "python", search.Options{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "python-primer", results[0].BookID)
}

func TestRemoveBook(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveBook(context.Background(), "python-primer"))
	assert.False(t, svc.HasBook("python-primer"))
	assert.NoFileExists(t, svc.chunksPath("python-primer"))

	require.NoError(t, svc.RemoveBook(context.Background(), "never-indexed"))
}

func TestIndexLibraryPrunesDeletedBooks(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)
	sqlPath := writeTestBook(t, cfg, "sql-handbook.md", sqlBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(sqlPath))
	_, err = svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"python-primer"}, svc.Books())
}

func TestIndexLibraryForceRebuild(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)

	report, err := svc.IndexLibrary(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, report.Indexed, 1)

	results, err := svc.Search(context.Background(), "python", search.Options{TopK: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestIndexBatchIsolatesFailures(t *testing.T) {
	cfg := testConfig(t)
	good := writeTestBook(t, cfg, "python-primer.md", pythonBookBody)
	missing := filepath.Join(cfg.Library.BooksDir, "gone.md")

	svc := openService(t, cfg)
	report, err := svc.IndexBatch(context.Background(), []string{good, missing})
	require.NoError(t, err)

	assert.Equal(t, []string{good}, report.Indexed)
	require.Contains(t, report.Failed, missing)
	assert.Equal(t, ragerrors.ErrCodeFileNotFound, ragerrors.GetCode(report.Failed[missing]))
}

func TestLostKeywordSnapshotRebuiltOnOpen(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "sql-handbook.md", sqlBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)
	snapshot := keywordSnapshotPath(svc.keywordBasePath("sql-handbook"), cfg.Search.KeywordBackend)
	require.FileExists(t, snapshot)
	require.NoError(t, svc.Close())

	// Lose the keyword artifact between runs.
	require.NoError(t, os.Remove(snapshot))

	reopened := openService(t, cfg)

	hits, err := reopened.KeywordSearch(context.Background(), "sql-handbook", "join", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits, "keyword index must be rebuilt from chunk texts")
	assert.FileExists(t, snapshot)

	results, err := reopened.Search(context.Background(), "join", search.Options{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	found := false
	for _, r := range results {
		if r.KeywordScore > 0 {
			found = true
		}
	}
	assert.True(t, found, "search results must carry keyword scores again")
}

func TestIndexBatchConcurrentBooks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.IndexWorkers = 4
	paths := []string{
		writeTestBook(t, cfg, "python-primer.md", pythonBookBody),
		writeTestBook(t, cfg, "sql-handbook.md", sqlBookBody),
		writeTestBook(t, cfg, "go-notes.md", "# Go メモ\n\ngoroutine は軽量な並行処理の単位です。channel で値を受け渡します。\n"),
		writeTestBook(t, cfg, "rust-notes.md", "# Rust メモ\n\n所有権と借用がメモリ安全を保証します。trait で振る舞いを定義します。\n"),
	}

	svc := openService(t, cfg)
	report, err := svc.IndexBatch(context.Background(), paths)
	require.NoError(t, err)

	assert.Len(t, report.Indexed, len(paths))
	assert.Empty(t, report.Failed)
	for _, id := range []string{"go-notes", "python-primer", "rust-notes", "sql-handbook"} {
		assert.True(t, svc.HasBook(id), id)
	}
}

func TestReindexReplacesBookState(t *testing.T) {
	cfg := testConfig(t)
	path := writeTestBook(t, cfg, "python-primer.md", pythonBookBody)

	svc := openService(t, cfg)
	require.NoError(t, svc.IndexBook(context.Background(), path))
	before := svc.Fingerprint()

	appended := pythonBookBody +
		"\n## 追加の章\n\n" +
		"デコレータは関数を受け取り、振る舞いを拡張した関数を返します。ログ出力や計測の共通化に使われます。\n\n" +
		"ジェネレータは yield で値を順に返します。大きな列を一度に作らずに処理できます。\n\n" +
		"内包表記を使うとリストや辞書を一行で構築できます。条件を付けた絞り込みも書けます。\n"
	writeTestBook(t, cfg, "python-primer.md", appended)
	require.NoError(t, svc.IndexBook(context.Background(), path))

	assert.Equal(t, []string{"python-primer"}, svc.Books())
	assert.NotEqual(t, before, svc.Fingerprint())
}

func TestOpenCachesEmbedderOnce(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)

	// The embed factory adds the LRU layer; Open must not add another.
	info := embed.GetInfo(svc.embedder)
	assert.Equal(t, 1, strings.Count(info, "(cached)"), info)
}

func TestNewChunkerSelectsStrategy(t *testing.T) {
	cfg := config.NewConfig()

	cfg.Chunking.Strategy = config.ChunkStrategySentence
	_, ok := newChunker(cfg.Chunking).(*chunk.SentenceChunker)
	assert.True(t, ok)

	cfg.Chunking.Strategy = config.ChunkStrategyParagraph
	_, ok = newChunker(cfg.Chunking).(*chunk.ParagraphChunker)
	assert.True(t, ok)
}

func TestDimensionMismatchIsFatal(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	// Rewrite the vector artifact with a different dimension, as if it
	// were built by another embedding model.
	other, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(999))
	require.NoError(t, err)
	vecs := [][]float32{make([]float32, 999)}
	vecs[0][0] = 1
	require.NoError(t, other.Add(context.Background(), []string{"x"}, vecs))
	require.NoError(t, other.Save(filepath.Join(cfg.Library.CacheDir, vectorsFileName)))
	require.NoError(t, other.Close())

	_, err = Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeDimensionMismatch, ragerrors.GetCode(err))
	assert.Contains(t, err.Error(), "--force")
}

func TestStats(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)
	writeTestBook(t, cfg, "sql-handbook.md", sqlBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, 2, stats.TotalBooks)
	assert.Positive(t, stats.TotalChunks)
	assert.Positive(t, stats.Dimensions)
	assert.Equal(t, "okapi", stats.KeywordBackend)
	require.Len(t, stats.Books, 2)
	assert.Equal(t, "Python 入門", stats.Books[0].Title)
}

func TestBuildContext(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)

	text, err := svc.BuildContext(context.Background(), "python の繰り返し", search.Options{})
	require.NoError(t, err)
	assert.Contains(t, text, "Python 入門")
}

func TestCacheClear(t *testing.T) {
	cfg := testConfig(t)
	writeTestBook(t, cfg, "python-primer.md", pythonBookBody)

	svc := openService(t, cfg)
	_, err := svc.IndexLibrary(context.Background(), false)
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "python", search.Options{})
	require.NoError(t, err)
	assert.Positive(t, svc.CacheLen())

	require.NoError(t, svc.ClearCache())
	assert.Equal(t, 0, svc.CacheLen())
}
