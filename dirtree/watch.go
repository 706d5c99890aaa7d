package dirtree

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch watches the mirrored subtree until ctx is cancelled, invoking
// onChange once per burst of filesystem events after the configured quiet
// period. Directories created at runtime are added to the watch list
// automatically.
//
// onChange runs on the watcher goroutine. Hosts must bridge back to the
// model's goroutine (post a message, send on a channel) before calling
// Refresh or touching the model.
func (t *Tree) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dirtree: start watcher: %w", err)
	}
	defer w.Close()

	if err := addDirsRecursive(w, t.root, t.showHidden); err != nil {
		return fmt.Errorf("dirtree: watch %s: %w", t.root, err)
	}
	t.log.Info("watcher: started", slog.String("root", t.root))

	// quiet debounces bursts: every relevant event re-arms it, and only
	// its expiry reaches onChange.
	var quiet *time.Timer
	var quietC <-chan time.Time
	schedule := func() {
		if quiet == nil {
			quiet = time.NewTimer(t.debounce)
			quietC = quiet.C
		} else {
			quiet.Reset(t.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if quiet != nil {
				quiet.Stop()
			}
			t.log.Info("watcher: stopped")
			return nil

		case <-quietC:
			t.log.Debug("watcher: change burst settled")
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name, t.showHidden); addErr != nil {
						t.log.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						t.log.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}
			if t.relevant(ev.Name) {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			t.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relevant filters events under hidden directories when hidden entries
// are not shown, so churn in dot-directories does not wake the host.
func (t *Tree) relevant(abs string) bool {
	if t.showHidden {
		return true
	}
	rel, err := filepath.Rel(t.root, abs)
	if err != nil || rel == "." {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	return true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, showHidden bool) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if !showHidden && p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
