// Package queue provides the persisted offline sync queue.
//
// Entries are processed strictly in FIFO order. A failed entry goes back to
// the front and draining stops, so nothing behind it runs before it succeeds.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kimhsiao/resaletally/internal/logging"
	"github.com/kimhsiao/resaletally/internal/models"
)

// Action tags a queued sync attempt.
type Action string

const (
	ActionSync Action = "sync"
)

// DefaultMaxSize bounds the queue when no size is configured.
const DefaultMaxSize = 100

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("sync queue is full")
)

// QueueItem is a sync attempt deferred while offline. Snapshot holds the
// dataset as it was at enqueue time.
type QueueItem struct {
	ID        string
	Action    Action
	Timestamp time.Time
	Snapshot  *models.Snapshot
}

// Persister stores the queue between runs.
type Persister interface {
	LoadSyncQueue() ([]*models.SyncQueue, error)
	SaveSyncQueue(items []*models.SyncQueue) error
}

// ProcessFunc handles one queued item during a drain.
type ProcessFunc func(ctx context.Context, item *QueueItem) error

// SyncQueue is a FIFO of pending sync attempts, persisted after every change.
type SyncQueue struct {
	mu      sync.Mutex
	items   []*QueueItem
	maxSize int
	store   Persister

	drainMu sync.Mutex
}

// NewSyncQueue creates a new SyncQueue. store may be nil for an in-memory queue.
func NewSyncQueue(maxSize int, store Persister) *SyncQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &SyncQueue{
		items:   make([]*QueueItem, 0),
		maxSize: maxSize,
		store:   store,
	}
}

// Load replaces the in-memory queue with the persisted one. Entries that
// cannot be decoded are dropped with a warning.
func (q *SyncQueue) Load() error {
	if q.store == nil {
		return nil
	}

	stored, err := q.store.LoadSyncQueue()
	if err != nil {
		return fmt.Errorf("load sync queue: %w", err)
	}

	items := make([]*QueueItem, 0, len(stored))
	for _, m := range stored {
		item, err := FromModel(m)
		if err != nil {
			logging.Warn("Dropping unreadable sync queue entry", map[string]interface{}{
				"id":    m.ID,
				"error": err.Error(),
			})
			continue
		}
		items = append(items, item)
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()

	if len(items) > 0 {
		logging.Info("Restored offline sync queue", map[string]interface{}{"length": len(items)})
	}
	return nil
}

// Enqueue appends a sync attempt capturing snapshot.
func (q *SyncQueue) Enqueue(action Action, snapshot *models.Snapshot) (*QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxSize {
		return nil, fmt.Errorf("%w (max size: %d)", ErrQueueFull, q.maxSize)
	}

	item := &QueueItem{
		ID:        uuid.New().String(),
		Action:    action,
		Timestamp: time.Now().UTC(),
		Snapshot:  snapshot,
	}
	q.items = append(q.items, item)

	if err := q.persistLocked(); err != nil {
		q.items = q.items[:len(q.items)-1]
		return nil, err
	}

	logging.Debug("Enqueued offline sync", map[string]interface{}{
		"id":     item.ID,
		"action": string(action),
		"length": len(q.items),
	})
	return item, nil
}

// Shift removes and returns the front item, or nil when empty.
func (q *SyncQueue) Shift() (*QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, nil
	}
	item := q.items[0]
	q.items = q.items[1:]

	if err := q.persistLocked(); err != nil {
		q.items = append([]*QueueItem{item}, q.items...)
		return nil, err
	}
	return item, nil
}

// Unshift puts item back at the front.
func (q *SyncQueue) Unshift(item *QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append([]*QueueItem{item}, q.items...)
	return q.persistLocked()
}

// Peek returns the front item without removing it.
func (q *SyncQueue) Peek() *QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Drain processes items front to back, one at a time. The first failure is
// put back at the front and ends the drain. A drain already running makes
// this call a no-op.
func (q *SyncQueue) Drain(ctx context.Context, process ProcessFunc) (int, error) {
	if !q.drainMu.TryLock() {
		return 0, nil
	}
	defer q.drainMu.Unlock()

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		item, err := q.Shift()
		if err != nil {
			return processed, err
		}
		if item == nil {
			return processed, nil
		}

		if err := process(ctx, item); err != nil {
			if uerr := q.Unshift(item); uerr != nil {
				logging.Error("Failed to requeue sync entry", uerr, map[string]interface{}{"id": item.ID})
			}
			logging.Warn("Offline queue drain stopped", map[string]interface{}{
				"id":        item.ID,
				"processed": processed,
				"remaining": q.Len(),
				"error":     err.Error(),
			})
			return processed, err
		}
		processed++
	}
}

// List returns a copy of the queued items in order.
func (q *SyncQueue) List() []*QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued items.
func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear empties the queue.
func (q *SyncQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make([]*QueueItem, 0)
	return q.persistLocked()
}

func (q *SyncQueue) persistLocked() error {
	if q.store == nil {
		return nil
	}

	stored := make([]*models.SyncQueue, 0, len(q.items))
	for _, item := range q.items {
		m, err := item.ToModel()
		if err != nil {
			return err
		}
		stored = append(stored, m)
	}
	if err := q.store.SaveSyncQueue(stored); err != nil {
		return fmt.Errorf("persist sync queue: %w", err)
	}
	return nil
}

// ToModel converts a QueueItem to a SyncQueue model for database storage.
func (item *QueueItem) ToModel() (*models.SyncQueue, error) {
	payload, err := json.Marshal(item.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return &models.SyncQueue{
		ID:        item.ID,
		Action:    string(item.Action),
		Payload:   json.RawMessage(payload),
		CreatedAt: item.Timestamp.UnixMilli(),
	}, nil
}

// FromModel creates a QueueItem from a SyncQueue model.
func FromModel(model *models.SyncQueue) (*QueueItem, error) {
	var snapshot *models.Snapshot
	if len(model.Payload) > 0 {
		if err := json.Unmarshal(model.Payload, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
	}

	return &QueueItem{
		ID:        model.ID,
		Action:    Action(model.Action),
		Timestamp: time.UnixMilli(model.CreatedAt).UTC(),
		Snapshot:  snapshot,
	}, nil
}
