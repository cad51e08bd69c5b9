package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the configuration when its file changes on disk. A
// reload that fails to load or validate keeps the previous configuration;
// valid reloads invoke the callback with the new config.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	logger   zerolog.Logger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewWatcher starts watching the loader's config file. onChange runs on
// the watcher goroutine for every valid reload.
func NewWatcher(loader *Loader, onChange func(*Config), logger zerolog.Logger) (*Watcher, error) {
	configPath := loader.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory; editors replace files rather than write in
	// place, which drops per-file watches.
	if err := fsWatcher.Add(filepath.Dir(configPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		watcher:  fsWatcher,
		onChange: onChange,
		logger:   logger.With().Str("component", "config-watcher").Logger(),
		done:     make(chan struct{}),
	}

	go w.run(configPath)
	return w, nil
}

func (w *Watcher) run(configPath string) {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(configPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watch error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Config reload failed; keeping previous configuration")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn().Err(err).Msg("Reloaded config invalid; keeping previous configuration")
		return
	}

	w.logger.Info().Msg("Configuration reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	err := w.watcher.Close()
	<-w.done
	return err
}
