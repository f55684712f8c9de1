// Package watcher connects entity store mutations to the sync scheduler.
package watcher

import (
	"sync"

	"github.com/kimhsiao/resaletally/internal/db"
	"github.com/kimhsiao/resaletally/internal/logging"
	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

// Scheduler is the debounce entry point the watcher calls.
type Scheduler interface {
	Schedule()
}

// Watcher counts every committed mutation and schedules an upload for it.
// Each mutation is seen once however many times Enable is called.
type Watcher struct {
	source    db.ChangeSource
	session   *syncpkg.Session
	scheduler Scheduler

	mu          sync.Mutex
	unsubscribe func()
}

// New creates a disabled Watcher.
func New(source db.ChangeSource, session *syncpkg.Session, scheduler Scheduler) *Watcher {
	return &Watcher{
		source:    source,
		session:   session,
		scheduler: scheduler,
	}
}

// Enable subscribes to the store. It reports false when already enabled.
func (w *Watcher) Enable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.unsubscribe != nil {
		return false
	}
	w.unsubscribe = w.source.Subscribe(w.handle)

	logging.Info("Change watcher enabled", nil)
	return true
}

// Disable unsubscribes from the store. It is safe to call when disabled.
func (w *Watcher) Disable() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.unsubscribe == nil {
		return
	}
	w.unsubscribe()
	w.unsubscribe = nil

	logging.Info("Change watcher disabled", nil)
}

// Enabled reports whether the watcher is subscribed.
func (w *Watcher) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unsubscribe != nil
}

func (w *Watcher) handle(event models.ChangeEvent) {
	n := w.session.IncrementChanges()

	logging.Debug("Local change detected", map[string]interface{}{
		"collection": string(event.Collection),
		"operation":  event.Operation,
		"item_id":    event.ItemID,
		"changes":    n,
	})

	w.scheduler.Schedule()
}
