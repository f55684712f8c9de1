// Package sync moves snapshots between the local store and the remote
// document store for the current user code.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kimhsiao/resaletally/internal/db"
	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/logging"
	"github.com/kimhsiao/resaletally/internal/models"
	"github.com/kimhsiao/resaletally/internal/sync/conflict"
	"github.com/kimhsiao/resaletally/internal/sync/storage"
)

// maxErrorHistory bounds the in-memory error history.
const maxErrorHistory = 50

// Store is the part of the entity store the client reads and writes.
type Store interface {
	db.SnapshotStore
	CreateConflictLog(log *models.ConflictLog) error
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	RetryBaseDelay time.Duration // Backoff before retry n is n × base (default: 2s)
	MaxRetries     int           // Retries after the first attempt (default: 3)
	BackupKeep     int           // Login backups kept on disk (default: 5)
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RetryBaseDelay: 2 * time.Second,
		MaxRetries:     3,
		BackupKeep:     5,
	}
}

// SyncResult describes one upload or download.
type SyncResult struct {
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Duration   time.Duration `json:"duration"`
	Uploaded   int           `json:"uploaded"`
	Downloaded int           `json:"downloaded"`
	Conflicts  int           `json:"conflicts"`
	Skipped    bool          `json:"skipped"`
	FirstSync  bool          `json:"firstSync"`
	Error      string        `json:"error,omitempty"`
}

// SyncErrorEntry is one recorded sync failure.
type SyncErrorEntry struct {
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Client is the remote sync client. At most one upload, download or login
// runs at a time; a concurrent call fails fast with ErrSyncInProgress.
type Client struct {
	store    Store
	session  *Session
	remote   RemoteStore
	notifier *Notifier
	trigger  *TriggerFile
	backups  *storage.BackupStore
	config   ClientConfig

	inFlight gosync.Mutex

	mu       gosync.RWMutex
	status   SyncStatus
	lastErr  error
	errorLog []SyncErrorEntry

	now func() time.Time
}

// NewClient creates a new Client. A nil config uses the defaults and a nil
// notifier gets a private one.
func NewClient(store Store, session *Session, remote RemoteStore, notifier *Notifier, config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Client{
		store:    store,
		session:  session,
		remote:   remote,
		notifier: notifier,
		config:   *config,
		status:   StatusIdle,
		now:      time.Now,
	}
}

// SetTrigger enables the cross-process trigger written after each upload.
func (c *Client) SetTrigger(t *TriggerFile) {
	c.trigger = t
}

// SetBackups enables on-disk login backups.
func (c *Client) SetBackups(b *storage.BackupStore) {
	c.backups = b
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// Remote returns the remote store.
func (c *Client) Remote() RemoteStore {
	return c.remote
}

// Notifier returns the notifier used for status and refresh events.
func (c *Client) Notifier() *Notifier {
	return c.notifier
}

// Status returns the current sync status.
func (c *Client) Status() SyncStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LastSync returns the time of the last successful sync, or nil.
func (c *Client) LastSync() *time.Time {
	t := c.session.LastSync()
	if t.IsZero() {
		return nil
	}
	return &t
}

// PendingChanges returns the number of local changes not yet uploaded.
func (c *Client) PendingChanges() int {
	return c.session.ChangeCount()
}

// LastError returns the error of the last failed sync, cleared on success.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// ErrorHistory returns a copy of the recent failures, oldest first.
func (c *Client) ErrorHistory() []SyncErrorEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]SyncErrorEntry, len(c.errorLog))
	copy(out, c.errorLog)
	return out
}

// Upload pushes the current local snapshot unless its hash matches the last
// upload, in which case no network call is made.
func (c *Client) Upload(ctx context.Context) (*SyncResult, error) {
	if !c.inFlight.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.inFlight.Unlock()

	return c.upload(ctx)
}

// Download fetches the remote snapshot, merges it into the local store and
// refreshes the views. With no remote document yet, the local snapshot is
// uploaded to seed it instead.
func (c *Client) Download(ctx context.Context) (*SyncResult, error) {
	if !c.inFlight.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.inFlight.Unlock()

	return c.download(ctx)
}

func (c *Client) upload(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: c.now()}

	snapshot, err := c.store.ExportSnapshot()
	if err != nil {
		return c.fail(result, "upload", apperrors.Wrap(apperrors.ErrExportFailed, "failed to export local data", err))
	}
	hash, err := HashSnapshot(snapshot)
	if err != nil {
		return c.fail(result, "upload", apperrors.Wrap(apperrors.ErrSyncFailed, "failed to hash snapshot", err))
	}

	if hash == c.session.LastDataHash() {
		result.Skipped = true
		c.session.ResetChanges()
		c.finish(result)
		logging.Debug("Upload skipped, data unchanged", map[string]interface{}{"hash": hash[:12]})
		return result, nil
	}

	c.setStatus(StatusSyncing, "uploading", nil)

	now := c.now().UTC()
	doc := &models.RemoteDocument{
		UserID:      c.session.UserID(),
		Data:        snapshot,
		UpdatedAt:   now,
		DeviceID:    c.session.DeviceID(),
		SyncVersion: c.session.SyncVersion() + 1,
	}

	err = c.withRetry(ctx, "upload", func(ctx context.Context) error {
		return c.remote.Upsert(ctx, doc)
	})
	if err != nil {
		return c.fail(result, "upload", apperrors.Wrap(apperrors.ErrSyncFailed, "failed to upload snapshot", err))
	}

	if err := c.session.RecordUpload(hash, doc.SyncVersion, now); err != nil {
		logging.Error("Failed to persist upload state", err, nil)
	}
	if c.trigger != nil {
		if err := c.trigger.Publish(doc.UserID); err != nil {
			logging.Warn("Failed to publish sync trigger", map[string]interface{}{"error": err.Error()})
		}
	}

	result.Uploaded = 1
	c.finish(result)
	logging.Info("Upload completed", map[string]interface{}{
		"user_id":      doc.UserID,
		"sync_version": doc.SyncVersion,
		"sales":        len(snapshot.Sales),
		"duration_ms":  result.Duration.Milliseconds(),
	})
	return result, nil
}

func (c *Client) download(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: c.now()}
	userID := c.session.UserID()

	c.setStatus(StatusSyncing, "downloading", nil)

	doc, err := retry.DoValue(ctx, c.backoff(), attempt(c, "download", func(ctx context.Context) (*models.RemoteDocument, error) {
		return c.remote.Fetch(ctx, userID)
	}))
	c.session.SetRetryCount(0)

	if errors.Is(err, ErrRemoteNotFound) || (err == nil && (doc == nil || doc.Data == nil)) {
		logging.Info("No remote data yet, seeding remote from local", map[string]interface{}{"user_id": userID})
		up, err := c.upload(ctx)
		if up != nil {
			up.StartTime = result.StartTime
			up.FirstSync = true
		}
		return up, err
	}
	if err != nil {
		return c.fail(result, "download", apperrors.Wrap(apperrors.ErrSyncFailed, "failed to download snapshot", err))
	}

	local, err := c.store.ExportSnapshot()
	if err != nil {
		return c.fail(result, "download", apperrors.Wrap(apperrors.ErrExportFailed, "failed to export local data", err))
	}

	merged, report := conflict.Merge(local, doc.Data)
	if err := c.store.ImportSnapshot(merged); err != nil {
		return c.fail(result, "download", err)
	}

	if err := c.session.RecordDownload(doc.UpdatedAt, doc.SyncVersion); err != nil {
		logging.Error("Failed to persist download state", err, nil)
	}
	c.recordConflicts(report)

	result.Downloaded = report.RemoteOnly + report.RemoteWins()
	result.Conflicts = len(report.Conflicts)

	logging.Info("Download merged", map[string]interface{}{
		"user_id":      userID,
		"sync_version": doc.SyncVersion,
		"remote_only":  report.RemoteOnly,
		"local_only":   report.LocalOnly,
		"conflicts":    len(report.Conflicts),
		"remote_wins":  report.RemoteWins(),
	})

	c.notifier.Refresh()

	// Push local-only data back so the remote copy converges.
	if report.LocalOnly > 0 || len(report.Conflicts) > report.RemoteWins() {
		up, err := c.upload(ctx)
		if err != nil {
			c.session.IncrementChanges()
			logging.Warn("Upload after merge failed, will retry later", map[string]interface{}{"error": err.Error()})
		} else if up.Uploaded > 0 {
			result.Uploaded = up.Uploaded
		}
	}

	c.finish(result)
	return result, nil
}

// attempt wraps one remote call so failures other than not-found are retried.
func attempt[T any](c *Client, op string, fn func(context.Context) (T, error)) retry.RetryFuncValue[T] {
	n := 0
	return func(ctx context.Context) (T, error) {
		n++
		c.session.SetRetryCount(n - 1)
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrRemoteNotFound) {
			return v, err
		}
		logging.Warn("Remote "+op+" attempt failed", map[string]interface{}{
			"attempt": n,
			"error":   err.Error(),
		})
		return v, retry.RetryableError(err)
	}
}

func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := retry.DoValue(ctx, c.backoff(), attempt(c, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}))
	c.session.SetRetryCount(0)
	return err
}

// backoff waits base × n before retry n.
func (c *Client) backoff() retry.Backoff {
	var n uint64
	base := c.config.RetryBaseDelay
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		return time.Duration(atomic.AddUint64(&n, 1)) * base, false
	})
	if c.config.MaxRetries < 0 {
		return retry.WithMaxRetries(0, linear)
	}
	return retry.WithMaxRetries(uint64(c.config.MaxRetries), linear)
}

func (c *Client) recordConflicts(report *conflict.Report) {
	logs := report.ConflictLogs(c.now().Unix())
	for _, l := range logs {
		if err := c.store.CreateConflictLog(l); err != nil {
			logging.Warn("Failed to record conflict", map[string]interface{}{
				"collection": string(l.Collection),
				"item_id":    l.ItemID,
				"error":      err.Error(),
			})
			return
		}
	}
}

func (c *Client) finish(result *SyncResult) {
	result.EndTime = c.now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()

	if result.Skipped {
		c.setStatus(StatusIdle, "", nil)
		return
	}
	c.setStatus(StatusSuccess, fmt.Sprintf("uploaded %d, downloaded %d", result.Uploaded, result.Downloaded), nil)
}

func (c *Client) fail(result *SyncResult, op string, err error) (*SyncResult, error) {
	result.EndTime = c.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Error = err.Error()

	c.mu.Lock()
	c.lastErr = err
	c.errorLog = append(c.errorLog, SyncErrorEntry{Operation: op, Message: err.Error(), At: result.EndTime})
	if len(c.errorLog) > maxErrorHistory {
		c.errorLog = c.errorLog[len(c.errorLog)-maxErrorHistory:]
	}
	c.mu.Unlock()

	logging.ErrorWithCode("Sync "+op+" failed", string(apperrors.CodeOf(err)), err, map[string]interface{}{
		"user_id": c.session.UserID(),
	})
	c.setStatus(StatusError, op+" failed", err)
	return result, err
}

func (c *Client) setStatus(status SyncStatus, message string, err error) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.notifier.Publish(status, message, err)
}
