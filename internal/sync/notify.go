package sync

import (
	"fmt"
	gosync "sync"
	"time"

	"github.com/kimhsiao/resaletally/internal/logging"
)

// SyncStatus is the user-visible state of synchronization.
type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusSuccess SyncStatus = "success"
	StatusError   SyncStatus = "error"
	StatusOffline SyncStatus = "offline"
	StatusQueued  SyncStatus = "queued"
)

// StatusEvent is published on every status transition.
type StatusEvent struct {
	Status  SyncStatus `json:"status"`
	Message string     `json:"message,omitempty"`
	Err     error      `json:"-"`
	At      time.Time  `json:"at"`
}

// ErrorText returns the error message or an empty string.
func (e StatusEvent) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// RefreshListener is a view that re-reads the store after a sync changed it.
type RefreshListener interface {
	Refresh()
}

// RefreshFunc adapts a function to RefreshListener.
type RefreshFunc func()

// Refresh calls f.
func (f RefreshFunc) Refresh() { f() }

// StatusListener receives status events.
type StatusListener func(StatusEvent)

type refreshEntry struct {
	id       int
	name     string
	listener RefreshListener
}

type statusEntry struct {
	id int
	fn StatusListener
}

// Notifier fans refresh signals and status events out to collaborators.
// Listeners run synchronously; a panicking listener is logged and skipped.
type Notifier struct {
	mu       gosync.RWMutex
	views    []refreshEntry
	statuses []statusEntry
	nextID   int
	current  StatusEvent
	now      func() time.Time
}

// NewNotifier creates a Notifier in the idle state.
func NewNotifier() *Notifier {
	n := &Notifier{now: time.Now}
	n.current = StatusEvent{Status: StatusIdle, At: n.now()}
	return n
}

// Register adds a view under name, replacing any view already registered
// with that name. The returned function removes it.
func (n *Notifier) Register(name string, listener RefreshListener) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	replaced := false
	for i, v := range n.views {
		if v.name == name {
			n.views[i] = refreshEntry{id: id, name: name, listener: listener}
			replaced = true
			break
		}
	}
	if !replaced {
		n.views = append(n.views, refreshEntry{id: id, name: name, listener: listener})
	}
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, v := range n.views {
			if v.id == id {
				n.views = append(n.views[:i], n.views[i+1:]...)
				return
			}
		}
	}
}

// Views returns the registered view names in registration order.
func (n *Notifier) Views() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	names := make([]string, 0, len(n.views))
	for _, v := range n.views {
		names = append(names, v.name)
	}
	return names
}

// OnStatus adds a status listener. The returned function removes it.
func (n *Notifier) OnStatus(listener StatusListener) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.statuses = append(n.statuses, statusEntry{id: id, fn: listener})
	n.mu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.statuses {
				if s.id == id {
					n.statuses = append(n.statuses[:i], n.statuses[i+1:]...)
					return
				}
			}
		})
	}
}

// Refresh tells every registered view to redraw.
func (n *Notifier) Refresh() {
	n.mu.RLock()
	views := make([]refreshEntry, len(n.views))
	copy(views, n.views)
	n.mu.RUnlock()

	for _, v := range views {
		n.safeCall(v.name, v.listener.Refresh)
	}
	logging.Debug("Refreshed views", map[string]interface{}{"views": len(views)})
}

// Publish records and broadcasts a status transition.
func (n *Notifier) Publish(status SyncStatus, message string, err error) {
	event := StatusEvent{Status: status, Message: message, Err: err, At: n.now()}

	n.mu.Lock()
	n.current = event
	listeners := make([]StatusListener, 0, len(n.statuses))
	for _, s := range n.statuses {
		listeners = append(listeners, s.fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn := fn
		n.safeCall("status", func() { fn(event) })
	}
}

// Current returns the last published status.
func (n *Notifier) Current() StatusEvent {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

func (n *Notifier) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Sync listener panicked", fmt.Errorf("%v", r), map[string]interface{}{"listener": name})
		}
	}()
	fn()
}
