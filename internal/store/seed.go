package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LoadSeed replaces the tree's contents with the JSON document in the
// seed file.
func LoadSeed(t *Tree, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("store: read seed: %w", err)
	}
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("store: decode seed %s: %w", path, err)
	}
	t.Replace(root)
	return nil
}

// WatchSeed watches the seed file and reloads the tree whenever it
// changes, calling cb (if non-nil) after each successful reload. It runs
// until ctx is cancelled.
//
// The parent directory is watched rather than the file itself: editors
// that write via rename would otherwise drop the watch.
func WatchSeed(ctx context.Context, t *Tree, path string, logger *slog.Logger, cb func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("seed watcher: started", slog.String("path", abs))

	// Writes arrive as bursts of events; debounce before reloading.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("seed watcher: stopped")
			return nil

		case <-reloadCh:
			if err := LoadSeed(t, abs); err != nil {
				logger.Warn("seed watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("seed watcher: reloaded", slog.String("path", abs))
			if cb != nil {
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("seed watcher: error", slog.String("error", err.Error()))
		}
	}
}
