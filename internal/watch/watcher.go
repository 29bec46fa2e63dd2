package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/loader"
	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const defaultDebounce = 500 * time.Millisecond

type Ingester interface {
	Ingest(ctx context.Context, paths []string) (*model.IngestReport, error)
}

// Watcher re-ingests note files as they change. Events are collected per path
// and flushed as one ingest call once the directory has been quiet for the
// debounce interval.
type Watcher struct {
	root     string
	ingester Ingester
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

func New(root string, ingester Ingester, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		root:     filepath.Clean(root),
		ingester: ingester,
		debounce: debounce,
		pending:  make(map[string]struct{}),
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := w.addTree(ctx, fw, w.root, false); err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dir", w.root))
	logger.Info("watching notes directory", zap.Duration("debounce", w.debounce))
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && isDir(ev.Name) && !hiddenPath(w.root, ev.Name) {
				if err := w.addTree(ctx, fw, ev.Name, true); err != nil {
					logger.Warn("watch new directory failed", zap.String("path", ev.Name), zap.Error(err))
				}
				continue
			}
			if rel, ok := w.handleEvent(ev); ok {
				w.enqueue(ctx, rel)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// addTree watches dir and its non-hidden subdirectories. With enqueueFiles
// set, files already inside are queued, which covers directories moved in.
func (w *Watcher) addTree(ctx context.Context, fw *fsnotify.Watcher, dir string, enqueueFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != w.root && hiddenPath(w.root, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		if enqueueFiles && loader.Supported(path) {
			if rel, err := filepath.Rel(w.root, path); err == nil {
				w.enqueue(ctx, filepath.ToSlash(rel))
			}
		}
		return nil
	})
}

// handleEvent maps an event to the relative path to re-ingest. Chmod-only
// events, hidden entries, directories and unsupported files are ignored.
func (w *Watcher) handleEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return "", false
	}
	if hiddenPath(w.root, ev.Name) || !loader.Supported(ev.Name) {
		return "", false
	}
	if (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) && isDir(ev.Name) {
		return "", false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) enqueue(ctx context.Context, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.flush(ctx)
	})
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()
	if len(paths) == 0 || ctx.Err() != nil {
		return
	}
	sort.Strings(paths)
	logger := logutil.GetLogger(ctx)
	report, err := w.ingester.Ingest(ctx, paths)
	if err != nil {
		logger.Error("re-index changed notes failed", zap.Strings("paths", paths), zap.Error(err))
		return
	}
	logger.Info("changed notes re-indexed",
		zap.Strings("paths", paths),
		zap.Int("chunks", report.Chunks),
		zap.Int("removed", len(report.Removed)))
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func hiddenPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
