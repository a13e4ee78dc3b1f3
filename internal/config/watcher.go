// Package config provides configuration management for sniterm.
//
// Watcher drives sniterm's hot-reload path: the listening socket and
// the signing CA are fixed for the life of a 'sniterm serve' process
// (rebinding or re-keying mid-flight would drop or break in-flight
// connections), but the DNS companion server's domain list, upstream,
// and the process log level are cheap to change live, so onChange is
// where serve wires those three up without a restart.
package config

import (
	"os"
	"sync"
	"time"

	"github.com/sniterm/sniterm/internal/logging"
)

// Watcher watches the config file for changes and triggers reloads.
type Watcher struct {
	path     string
	onChange func(*Config)
	stop     chan struct{}
	wg       sync.WaitGroup
	lastMod  time.Time
	interval time.Duration
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, onChange func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		stop:     make(chan struct{}),
		interval: 2 * time.Second,
	}
}

// Start begins watching the config file for changes.
func (w *Watcher) Start() error {
	// Get initial mod time
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist yet, that's okay
			w.lastMod = time.Time{}
		} else {
			return err
		}
	} else {
		w.lastMod = info.ModTime()
	}

	w.wg.Add(1)
	go w.watch()

	logging.Info("config watcher started", "path", w.path)
	return nil
}

// Stop stops watching the config file.
func (w *Watcher) Stop() {
	close(w.stop)
	w.wg.Wait()
	logging.Info("config watcher stopped")
}

// watch is the main loop that checks for file changes.
func (w *Watcher) watch() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

// checkForChanges checks if the config file has been modified.
func (w *Watcher) checkForChanges() {
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			// File was deleted, reset lastMod
			if !w.lastMod.IsZero() {
				w.lastMod = time.Time{}
				logging.Debug("config file deleted", "path", w.path)
			}
		}
		return
	}

	modTime := info.ModTime()
	if modTime.After(w.lastMod) {
		w.lastMod = modTime
		logging.Info("config file changed, reloading", "path", w.path)

		// Load new config
		cfg, err := LoadFromFile(w.path)
		if err != nil {
			logging.Error("failed to reload config", "error", err)
			return
		}

		// Trigger callback
		if w.onChange != nil {
			w.onChange(cfg)
		}
	}
}
