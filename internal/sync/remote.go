package sync

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
)

var (
	// ErrRemoteNotFound is returned by RemoteStore.Fetch when no document
	// exists for the user. It is the first-sync condition, not a failure.
	ErrRemoteNotFound = errors.New("remote document not found")

	// ErrSyncInProgress is returned when another upload, download or login
	// holds the client.
	ErrSyncInProgress = apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
)

// RemoteStore is the per-user document service the client syncs against.
type RemoteStore interface {
	// Fetch returns the document for userID, or ErrRemoteNotFound.
	Fetch(ctx context.Context, userID string) (*models.RemoteDocument, error)

	// Upsert inserts or replaces the document keyed by doc.UserID.
	Upsert(ctx context.Context, doc *models.RemoteDocument) error
}

// BeaconSender performs detached best-effort upserts used at teardown.
type BeaconSender interface {
	// SendBeacon starts the upsert and returns immediately.
	SendBeacon(doc *models.RemoteDocument)

	// WaitBeacons blocks until in-flight beacons finish or timeout passes.
	// It reports whether they all finished.
	WaitBeacons(timeout time.Duration) bool
}

// Pinger reports whether the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
