package i18n

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/atu-ide/bizbridge/internal/logging"
)

// reloadDelay coalesces the burst of events editors emit on save
const reloadDelay = 100 * time.Millisecond

// Watch reloads the bundle directory whenever a bundle file changes.
// It blocks until ctx is done. LoadDir must have been called first.
func (c *Catalog) Watch(ctx context.Context, onReload func(error)) error {
	c.mu.RLock()
	dir := c.dir
	c.mu.RUnlock()
	if dir == "" {
		return fmt.Errorf("no bundle directory loaded")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isBundle(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			err := c.LoadDir(dir)
			if err != nil {
				logging.Warn().Err(err).Str("dir", dir).Msg("bundle reload failed")
			}
			if onReload != nil {
				onReload(err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(err).Msg("bundle watcher error")
		}
	}
}

func isBundle(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
