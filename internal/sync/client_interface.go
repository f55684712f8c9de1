package sync

import (
	"context"
	"time"
)

// ClientInterface defines the sync operations the scheduler and the API use.
// This interface allows for mocking in tests.
type ClientInterface interface {
	// Upload pushes the local snapshot, skipping unchanged data.
	Upload(ctx context.Context) (*SyncResult, error)

	// Download merges the remote snapshot into the local store.
	Download(ctx context.Context) (*SyncResult, error)

	// Login switches to another user code, rolling back on failure.
	Login(ctx context.Context, code string) error

	// Status returns the current sync status.
	Status() SyncStatus

	// LastSync returns the timestamp of the last successful sync.
	LastSync() *time.Time

	// PendingChanges returns the number of local changes not yet uploaded.
	PendingChanges() int

	// LastError returns the last error that occurred during sync.
	LastError() error
}

var _ ClientInterface = (*Client)(nil)
