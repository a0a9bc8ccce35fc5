// Package scheduler runs periodic maintenance tasks alongside the fsnotify
// watch: a cron-driven config reload that catches changes fsnotify missed
// (network filesystems, editors that replace inodes outside the watched
// event set) as a safety net rather than the primary reload path.
package scheduler

import (
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// ReloadSafetyNet periodically calls store.Reload() on a cron schedule. It
// is additive to internal/config's fsnotify watch, not a replacement for
// it: fsnotify reacts within milliseconds of a write; this catches the rare
// miss.
type ReloadSafetyNet struct {
	cron *cron.Cron
}

// NewReloadSafetyNet starts a cron-scheduled reload using the given spec
// (standard 5-field cron expression, e.g. "*/5 * * * *" for every five
// minutes).
func NewReloadSafetyNet(store *config.Store, spec string) (*ReloadSafetyNet, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := store.Reload(); err != nil {
			log.Warnf("scheduler: periodic config reload failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &ReloadSafetyNet{cron: c}, nil
}

// Stop halts the cron scheduler, waiting for any in-flight job to finish.
func (r *ReloadSafetyNet) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
