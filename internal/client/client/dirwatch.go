package client

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const conflictSuffix = ".conflict"

// DirWatcher reports local edits in the synced directory. Bursts of
// filesystem events are coalesced into one callback after a quiet period.
type DirWatcher struct {
	dir      string
	debounce time.Duration
	logger   logging.Logger
}

func NewDirWatcher(dir string, debounce time.Duration, logger logging.Logger) *DirWatcher {
	return &DirWatcher{dir: dir, debounce: debounce, logger: logger.With("module", "dirwatch")}
}

// ignored reports whether a change to name should not trigger a push.
func ignored(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, conflictSuffix)
}

// addTree watches root and every non-hidden directory below it; fsnotify
// is not recursive.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

// Watch calls fn after local changes settle until ctx is done. It returns
// ctx.Err() on cancellation.
func (dw *DirWatcher) Watch(ctx context.Context, fn func(context.Context)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := addTree(w, dw.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dw.dir, err)
	}

	timer := time.NewTimer(dw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// new subdirectories need their own watch
				if err := addTree(w, ev.Name); err != nil {
					dw.logger.Debug(ctx, "watch add failed", "path", ev.Name, "error", err)
				}
			}
			timer.Reset(dw.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			dw.logger.Warn(ctx, "filesystem watch error", "error", err)

		case <-timer.C:
			fn(ctx)
		}
	}
}
