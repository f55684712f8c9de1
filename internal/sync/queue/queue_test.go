// Package queue provides unit tests for the offline sync queue.
package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/resaletally/internal/db"
	"github.com/kimhsiao/resaletally/internal/models"
)

// memPersister records every save for inspection.
type memPersister struct {
	saved   []*models.SyncQueue
	saves   int
	saveErr error
}

func (m *memPersister) LoadSyncQueue() ([]*models.SyncQueue, error) {
	return m.saved, nil
}

func (m *memPersister) SaveSyncQueue(items []*models.SyncQueue) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.saved = items
	return nil
}

func snapshotWithSale(id string) *models.Snapshot {
	s := models.NewSnapshot()
	s.Sales = []models.Sale{{ID: id, ProductName: "p" + id}}
	return s
}

// =====================================================
// Enqueue / Shift
// =====================================================

// TestSyncQueueEnqueue tests enqueuing persists each change.
func TestSyncQueueEnqueue(t *testing.T) {
	store := &memPersister{}
	q := NewSyncQueue(10, store)

	item, err := q.Enqueue(ActionSync, snapshotWithSale("1"))
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, ActionSync, item.Action)
	assert.False(t, item.Timestamp.IsZero())

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, store.saves)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "sync", store.saved[0].Action)
}

// TestSyncQueueFull tests the capacity limit.
func TestSyncQueueFull(t *testing.T) {
	q := NewSyncQueue(2, nil)

	_, err := q.Enqueue(ActionSync, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ActionSync, nil)
	require.NoError(t, err)

	_, err = q.Enqueue(ActionSync, nil)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())
}

// TestSyncQueueEnqueue_persistFailure tests a failed save leaves the queue unchanged.
func TestSyncQueueEnqueue_persistFailure(t *testing.T) {
	store := &memPersister{saveErr: errors.New("disk full")}
	q := NewSyncQueue(10, store)

	_, err := q.Enqueue(ActionSync, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, q.Len())
}

// TestSyncQueueShiftUnshift tests FIFO order and re-prepending.
func TestSyncQueueShiftUnshift(t *testing.T) {
	q := NewSyncQueue(10, nil)
	a, _ := q.Enqueue(ActionSync, snapshotWithSale("a"))
	b, _ := q.Enqueue(ActionSync, snapshotWithSale("b"))

	first, err := q.Shift()
	require.NoError(t, err)
	assert.Equal(t, a.ID, first.ID)

	require.NoError(t, q.Unshift(first))
	assert.Equal(t, a.ID, q.Peek().ID)

	ids := []string{}
	for _, item := range q.List() {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{a.ID, b.ID}, ids)

	require.NoError(t, q.Clear())
	item, err := q.Shift()
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Nil(t, q.Peek())
}

// =====================================================
// Drain
// =====================================================

// TestDrain_inOrder tests every item is processed once, front to back.
func TestDrain_inOrder(t *testing.T) {
	q := NewSyncQueue(10, nil)
	var want []string
	for i := 0; i < 3; i++ {
		item, err := q.Enqueue(ActionSync, nil)
		require.NoError(t, err)
		want = append(want, item.ID)
	}

	var got []string
	n, err := q.Drain(context.Background(), func(_ context.Context, item *QueueItem) error {
		got = append(got, item.ID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, q.Len())
}

// TestDrain_stopsAtFailure tests that a failing second item blocks the third
// and is retried first on the next drain.
func TestDrain_stopsAtFailure(t *testing.T) {
	store := &memPersister{}
	q := NewSyncQueue(10, store)
	var ids []string
	for i := 0; i < 3; i++ {
		item, err := q.Enqueue(ActionSync, nil)
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	var attempts []string
	failOn := ids[1]
	process := func(_ context.Context, item *QueueItem) error {
		attempts = append(attempts, item.ID)
		if item.ID == failOn {
			return errors.New("network down")
		}
		return nil
	}

	n, err := q.Drain(context.Background(), process)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{ids[0], ids[1]}, attempts, "third entry must not run before second succeeds")
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, ids[1], q.Peek().ID, "failed entry is back at the front")
	require.Len(t, store.saved, 2)
	assert.Equal(t, ids[1], store.saved[0].ID, "persisted queue keeps the failed entry first")

	failOn = ""
	n, err = q.Drain(context.Background(), process)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{ids[0], ids[1], ids[1], ids[2]}, attempts)
}

// TestDrain_cancelled tests a cancelled context processes nothing.
func TestDrain_cancelled(t *testing.T) {
	q := NewSyncQueue(10, nil)
	_, _ = q.Enqueue(ActionSync, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := q.Drain(ctx, func(context.Context, *QueueItem) error {
		t.Fatal("process should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, q.Len())
}

// TestDrain_reentrant tests a drain started from inside a drain is a no-op.
func TestDrain_reentrant(t *testing.T) {
	q := NewSyncQueue(10, nil)
	_, _ = q.Enqueue(ActionSync, nil)
	_, _ = q.Enqueue(ActionSync, nil)

	calls := 0
	_, err := q.Drain(context.Background(), func(ctx context.Context, _ *QueueItem) error {
		calls++
		inner, err := q.Drain(ctx, func(context.Context, *QueueItem) error {
			t.Fatal("nested drain should not process")
			return nil
		})
		assert.Equal(t, 0, inner)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

// =====================================================
// Persistence
// =====================================================

// TestSyncQueue_reload tests the queue survives a restart through SQLite.
func TestSyncQueue_reload(t *testing.T) {
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	defer database.Close()
	repo := db.NewRepository(database.DB)
	defer repo.Close()

	q := NewSyncQueue(10, repo)
	first, err := q.Enqueue(ActionSync, snapshotWithSale("a"))
	require.NoError(t, err)
	second, err := q.Enqueue(ActionSync, snapshotWithSale("b"))
	require.NoError(t, err)

	restored := NewSyncQueue(10, repo)
	require.NoError(t, restored.Load())

	items := restored.List()
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)
	require.NotNil(t, items[1].Snapshot)
	assert.Equal(t, []string{"b"}, items[1].Snapshot.SaleIDs())
	assert.Equal(t, first.Timestamp.UnixMilli(), items[0].Timestamp.UnixMilli())
}

// TestFromModel_badPayload tests decode errors surface.
func TestFromModel_badPayload(t *testing.T) {
	_, err := FromModel(&models.SyncQueue{ID: "x", Action: "sync", Payload: []byte("{not json")})
	assert.Error(t, err)
}
