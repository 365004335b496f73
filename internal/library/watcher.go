package library

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ragerrors "github.com/bulldra/bookrag/internal/errors"
)

// DefaultWatchDebounce is the settle time before changed books are
// reported. Editors produce bursts of writes; reindexing on each one
// would thrash the index.
const DefaultWatchDebounce = 2 * time.Second

// Watcher reports changed book files under a library directory,
// coalescing rapid events per path within a debounce window.
type Watcher struct {
	root     string
	window   time.Duration
	exclude  []string
	onChange func(paths []string)
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
}

// NewWatcher creates a watcher over the books directory. onChange
// receives the sorted set of changed book paths after each quiet
// period; it runs on the watcher goroutine and must not block long.
func NewWatcher(root string, window time.Duration, exclude []string, onChange func(paths []string), logger *slog.Logger) (*Watcher, error) {
	if window <= 0 {
		window = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ragerrors.IOError("creating file watcher", err)
	}

	w := &Watcher{
		root:     root,
		window:   window,
		exclude:  exclude,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher. Pending undelivered changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && rel != "." && excludedPath(rel+"/", w.exclude) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return ragerrors.IOError("watching books directory", err)
	}
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories need their own watch for nested books.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !bookExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}
	if rel, err := filepath.Rel(w.root, event.Name); err == nil && excludedPath(rel, w.exclude) {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[event.Name] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.window, w.flush)
	} else {
		w.timer.Reset(w.window)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	sort.Strings(paths)
	w.onChange(paths)
}
