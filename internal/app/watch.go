package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"neocore/internal/telemetry"
)

const defaultDebounce = 250 * time.Millisecond

// ConfigWatcher reloads the config file after it settles and hands the new
// value to OnChange. Only the file's directory is watched so editors that
// replace the file by rename are still seen.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	environ  map[string]string
	logger   telemetry.Logger
	onChange func(Config)
}

func NewConfigWatcher(path string, debounce time.Duration, logger telemetry.Logger, onChange func(Config)) *ConfigWatcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = telemetry.WrapLogger(nil)
	}
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
	}
}

// Run blocks until ctx is done.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: watch %q: %w", filepath.Dir(w.path), err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("config watcher error: %v", err)
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path, w.environ)
	if err != nil {
		w.logger.Printf("config reload rejected: %v", err)
		return
	}
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
