// Package remote implements the remote document stores the sync client can
// target: Supabase PostgREST, PostgreSQL, S3-compatible object storage and
// an in-memory store.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

// MemoryStore keeps documents in process memory, encoded as JSON so callers
// never share state with the store. Several clients can share one store to
// simulate devices. Failures can be injected for tests.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failNext int
	failErr  error
	offline  bool
	upserts  int
	fetches  int

	beacons
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// FailNext makes the next n calls fail with err.
func (m *MemoryStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// SetOffline makes every call fail until cleared.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Stats returns the number of upsert and fetch calls made.
func (m *MemoryStore) Stats() (upserts, fetches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts, m.fetches
}

func (m *MemoryStore) injectedLocked() error {
	if m.offline {
		return fmt.Errorf("remote unreachable")
	}
	if m.failNext > 0 {
		m.failNext--
		if m.failErr != nil {
			return m.failErr
		}
		return fmt.Errorf("injected failure")
	}
	return nil
}

// Fetch returns the document for userID.
func (m *MemoryStore) Fetch(ctx context.Context, userID string) (*models.RemoteDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches++
	if err := m.injectedLocked(); err != nil {
		return nil, err
	}

	data, ok := m.docs[userID]
	if !ok {
		return nil, syncpkg.ErrRemoteNotFound
	}
	var doc models.RemoteDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Upsert stores doc under doc.UserID.
func (m *MemoryStore) Upsert(ctx context.Context, doc *models.RemoteDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.upserts++
	if err := m.injectedLocked(); err != nil {
		return err
	}
	m.docs[doc.UserID] = data
	return nil
}

// Ping fails while the store is offline.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return fmt.Errorf("remote unreachable")
	}
	return nil
}

// SendBeacon upserts doc in the background.
func (m *MemoryStore) SendBeacon(doc *models.RemoteDocument) {
	m.send("memory", m.Upsert, doc)
}

// WaitBeacons waits for in-flight beacons.
func (m *MemoryStore) WaitBeacons(timeout time.Duration) bool {
	return m.wait(timeout)
}

var (
	_ syncpkg.RemoteStore  = (*MemoryStore)(nil)
	_ syncpkg.BeaconSender = (*MemoryStore)(nil)
	_ syncpkg.Pinger       = (*MemoryStore)(nil)
)
