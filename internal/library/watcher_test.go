package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsChangedBooks(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)

	w, err := NewWatcher(dir, 50*time.Millisecond, nil, func(paths []string) {
		changes <- paths
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "alpha.md")
	require.NoError(t, os.WriteFile(path, []byte("# Alpha\n"), 0o644))

	paths := waitForChanges(t, changes)
	assert.Contains(t, paths, path)
}

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)

	w, err := NewWatcher(dir, 100*time.Millisecond, nil, func(paths []string) {
		changes <- paths
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "alpha.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("draft\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	paths := waitForChanges(t, changes)
	assert.Equal(t, []string{path}, paths)

	select {
	case extra := <-changes:
		t.Fatalf("burst produced a second batch: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherIgnoresNonBookFiles(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)

	w, err := NewWatcher(dir, 50*time.Millisecond, nil, func(paths []string) {
		changes <- paths
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644))

	select {
	case paths := <-changes:
		t.Fatalf("non-book change was reported: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 50*time.Millisecond, nil, func([]string) {}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func waitForChanges(t *testing.T, changes <-chan []string) []string {
	t.Helper()
	select {
	case paths := <-changes:
		return paths
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
		return nil
	}
}
