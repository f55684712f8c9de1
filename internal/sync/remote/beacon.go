package remote

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/resaletally/internal/logging"
	"github.com/kimhsiao/resaletally/internal/models"
)

// DefaultBeaconTimeout bounds a detached teardown upsert.
const DefaultBeaconTimeout = 10 * time.Second

type upsertFunc func(ctx context.Context, doc *models.RemoteDocument) error

// beacons runs detached upserts and lets shutdown wait for them.
type beacons struct {
	wg      sync.WaitGroup
	timeout time.Duration
}

func (b *beacons) send(backend string, upsert upsertFunc, doc *models.RemoteDocument) {
	timeout := b.timeout
	if timeout <= 0 {
		timeout = DefaultBeaconTimeout
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := upsert(ctx, doc); err != nil {
			logging.Warn("Beacon upsert failed", map[string]interface{}{
				"backend": backend,
				"user_id": doc.UserID,
				"error":   err.Error(),
			})
			return
		}
		logging.Info("Beacon upsert delivered", map[string]interface{}{
			"backend": backend,
			"user_id": doc.UserID,
		})
	}()
}

func (b *beacons) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
