package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce collapses bursts of writes into one reload.
const DefaultReloadDebounce = 100 * time.Millisecond

// fileWatcher calls reload after path changes. It watches the parent
// directory so editors that replace the file by rename are seen too.
type fileWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	reload   func() error
	log      *slog.Logger
}

func newFileWatcher(path string, debounce time.Duration, reload func() error, log *slog.Logger) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	return &fileWatcher{
		path:     abs,
		watcher:  w,
		debounce: debounce,
		reload:   reload,
		log:      log,
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (fw *fileWatcher) Run(ctx context.Context) error {
	defer func() { _ = fw.watcher.Close() }()

	timer := time.NewTimer(fw.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			fw.log.Debug("initialization file event", "path", event.Name, "op", event.Op.String())
			timer.Reset(fw.debounce)

		case <-timer.C:
			if err := fw.reload(); err != nil {
				fw.log.Error("initialization file reload failed", "path", fw.path, "error", err)
				continue
			}
			fw.log.Info("initialization file reloaded", "path", fw.path)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			fw.log.Error("file watcher error", "error", err)
		}
	}
}
