package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Store holds the live *Config behind an atomic pointer so the HTTP
// handlers and the failover router always observe a consistent snapshot
// even while a reload is in flight.
type Store struct {
	path string
	cur  atomic.Pointer[Config]
}

// NewStore loads path and wraps the result in a Store.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.cur.Store(cfg)
	return s, nil
}

// Get returns the current configuration.
func (s *Store) Get() *Config {
	return s.cur.Load()
}

// Reload re-reads the configuration file and swaps it in. The in-memory
// failed-key set (internal/keysched) is process-local and is not part of
// Config, so it is unaffected by a reload. Channel key order IS carried
// forward across reload for any channel whose name and key set are
// unchanged, so an admin-triggered or fsnotify-driven reload of unrelated
// config fields (port, a different channel's base-url, ...) does not
// silently undo a deprioritization earned by an in-flight quota failure.
// A channel whose key set actually changed on disk gets the freshly loaded
// order instead, since there is no prior runtime ordering to preserve.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	cfg.carryForwardKeyOrder(s.cur.Load())
	s.cur.Store(cfg)
	return nil
}

// Watch starts an fsnotify watch on the config file's path and calls
// Reload whenever the file is written or its inode is replaced (as editors
// commonly do via rename-over-write). It runs until stop is closed.
func (s *Store) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(s.path); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if err := s.Reload(); err != nil {
						log.Errorf("config: reload after file event failed: %v", err)
					} else {
						log.Info("config: reloaded from file watcher")
					}
					// A rename-over-write replaces the watched inode; the
					// old one no longer emits events, so re-add the path.
					_ = watcher.Add(s.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("config: watcher error: %v", err)
			}
		}
	}()
	return nil
}
