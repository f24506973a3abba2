package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to
// settle before re-ingesting.
const DefaultDebounce = 500 * time.Millisecond

// SourceRemover deletes every chunk that was ingested from a source path.
type SourceRemover interface {
	DeleteBySource(ctx context.Context, source string) error
}

// Watcher keeps the vector store in sync with the files selected by a
// FileSource. A created or modified file replaces its previous chunks; a
// removed or renamed file drops them.
type Watcher struct {
	source   *FileSource
	pipeline *Pipeline
	store    SourceRemover
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(source *FileSource, pipeline *Pipeline, store SourceRemover, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		source:   source,
		pipeline: pipeline,
		store:    store,
		debounce: debounce,
		logger:   logger,
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.source.Root()); err != nil {
		return err
	}
	w.logger.Info("Watching documents",
		zap.String("root", w.source.Root()),
		zap.String("pattern", w.source.Pattern()),
	)

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
					continue
				}
			}
			if !w.source.Matches(event.Name) {
				continue
			}
			pending[event.Name] |= event.Op
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]fsnotify.Op)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]fsnotify.Op) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := w.Sync(ctx, path); err != nil {
			w.logger.Error("Failed to re-ingest document", zap.String("path", path), zap.Error(err))
		}
	}
}

// Sync re-ingests path if it exists and otherwise removes its chunks.
func (w *Watcher) Sync(ctx context.Context, path string) error {
	source := filepath.ToSlash(filepath.Clean(path))
	if err := w.store.DeleteBySource(ctx, source); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", source, err)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			w.logger.Info("Removed document", zap.String("source", source))
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	doc, err := w.source.LoadFile(path)
	if err != nil {
		return err
	}
	report, err := w.pipeline.RunDocuments(ctx, []rag.Document{doc})
	if err != nil {
		return err
	}
	w.logger.Info("Re-ingested document",
		zap.String("source", source),
		zap.Int("chunks", report.Chunks),
	)
	return nil
}

// addTree registers dir and all of its subdirectories; fsnotify is not
// recursive.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
