package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jordanhubbard/oya-go/internal/observability"
)

// Watch reloads path whenever it changes on disk, debouncing rapid
// successive writes (editors often emit several events per save), and
// invokes cb with the freshly parsed Config or the error that prevented
// it. The watch is on the containing directory rather than the file
// itself: editors frequently replace a file by rename, which drops an
// fd-based watch on the old inode.
func Watch(ctx context.Context, path string, interval time.Duration, cb func(*Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	go func() {
		defer watcher.Close()

		debounce := time.NewTimer(time.Hour)
		if !debounce.Stop() {
			<-debounce.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(path) {
					debounce.Reset(interval)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				observability.Warn("config_watch_error", map[string]interface{}{"path": path, "error": err.Error()})
			case <-debounce.C:
				cfg, err := LoadConfigFromFile(path)
				cb(cfg, err)
			}
		}
	}()

	return nil
}
