// Package scheduler decides when uploads happen: it debounces bursts of
// local changes, queues syncs attempted while offline, drains the queue when
// connectivity returns and runs a periodic fallback upload.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kimhsiao/resaletally/internal/db"
	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/logging"
	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
	"github.com/kimhsiao/resaletally/internal/sync/queue"
)

// Scheduler manages background sync operations.
type Scheduler struct {
	client   syncpkg.ClientInterface
	session  *syncpkg.Session
	queue    *queue.SyncQueue
	exporter db.SnapshotStore
	notifier *syncpkg.Notifier
	beacon   syncpkg.BeaconSender
	pinger   syncpkg.Pinger

	debounceDelay    time.Duration
	periodicInterval time.Duration
	probeInterval    time.Duration
	syncTimeout      time.Duration

	mu             sync.RWMutex
	timer          *time.Timer
	generation     uint64 // bumped whenever the armed timer is replaced or cancelled
	baseCtx        context.Context
	stopCh         chan struct{}
	wg             sync.WaitGroup
	inflight       sync.WaitGroup // debounced uploads and online drains
	halted         bool
	isRunning      bool
	isOnline       bool
	lastSyncTime   time.Time
	syncInProgress bool
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	DebounceDelay    time.Duration // Quiet period before a scheduled upload (default: 3s)
	PeriodicInterval time.Duration // Fallback upload period (default: 30 minutes)
	ProbeInterval    time.Duration // Connectivity probe period, 0 disables (default: 0)
	SyncTimeout      time.Duration // Deadline for one background upload (default: 5 minutes)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		DebounceDelay:    3 * time.Second,
		PeriodicInterval: 30 * time.Minute,
		SyncTimeout:      5 * time.Minute,
	}
}

// Deps are the collaborators of a Scheduler. Beacon and Pinger are optional.
type Deps struct {
	Client   syncpkg.ClientInterface
	Session  *syncpkg.Session
	Queue    *queue.SyncQueue
	Exporter db.SnapshotStore
	Notifier *syncpkg.Notifier
	Beacon   syncpkg.BeaconSender
	Pinger   syncpkg.Pinger
}

// NewScheduler creates a new Scheduler. It starts in online mode.
func NewScheduler(deps Deps, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	defaults := DefaultSchedulerConfig()
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = defaults.DebounceDelay
	}
	if config.PeriodicInterval <= 0 {
		config.PeriodicInterval = defaults.PeriodicInterval
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = defaults.SyncTimeout
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = syncpkg.NewNotifier()
	}
	q := deps.Queue
	if q == nil {
		q = queue.NewSyncQueue(queue.DefaultMaxSize, nil)
	}

	return &Scheduler{
		client:           deps.Client,
		session:          deps.Session,
		queue:            q,
		exporter:         deps.Exporter,
		notifier:         notifier,
		beacon:           deps.Beacon,
		pinger:           deps.Pinger,
		debounceDelay:    config.DebounceDelay,
		periodicInterval: config.PeriodicInterval,
		probeInterval:    config.ProbeInterval,
		syncTimeout:      config.SyncTimeout,
		baseCtx:          context.Background(),
		isOnline:         true,
	}
}

// =====================================================
// Debounce
// =====================================================

// Schedule restarts the debounce timer. Only the last call in a burst fires
// an upload. It is a no-op while sync is disabled or after Stop.
func (s *Scheduler) Schedule() {
	if !s.session.Enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	gen := s.generation
	s.timer = time.AfterFunc(s.debounceDelay, func() { s.fire(gen) })
}

// Pending reports whether a debounced upload is armed.
func (s *Scheduler) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timer != nil
}

func (s *Scheduler) cancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

// fire runs the upload armed as generation gen. A timer that was replaced,
// cancelled or stopped after it expired finds a newer generation and does
// nothing.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.halted {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	ctx := s.baseCtx
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if err := s.runSync(ctx, "debounce"); errors.Is(err, syncpkg.ErrSyncInProgress) {
		logging.Debug("Sync in progress, re-arming debounce", nil)
		s.Schedule()
	}
}

// =====================================================
// Sync
// =====================================================

// runSync uploads now when online and queues a snapshot otherwise. After a
// successful upload a non-empty offline queue is drained. Errors are logged
// and published as status; they are returned only so callers can react to
// ErrSyncInProgress.
func (s *Scheduler) runSync(ctx context.Context, reason string) error {
	if !s.session.Enabled() {
		return nil
	}
	if !s.IsOnline() {
		return s.enqueue(reason)
	}

	if err := s.upload(ctx, reason); err != nil {
		return err
	}

	if s.queue.Len() > 0 {
		if _, err := s.DrainQueue(ctx); err != nil {
			logging.Warn("Offline queue drain incomplete", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

func (s *Scheduler) upload(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.syncInProgress {
		s.mu.Unlock()
		return syncpkg.ErrSyncInProgress
	}
	s.syncInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncInProgress = false
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.client.Upload(syncCtx)
	if err != nil {
		if !errors.Is(err, syncpkg.ErrSyncInProgress) {
			logging.ErrorWithCode("Scheduled sync failed", string(apperrors.ErrSyncFailed), err,
				map[string]interface{}{"reason": reason})
		}
		return err
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Info("Scheduled sync completed", map[string]interface{}{
		"reason":   reason,
		"uploaded": result.Uploaded,
		"skipped":  result.Skipped,
	})
	return nil
}

// enqueue captures the current snapshot in the offline queue.
func (s *Scheduler) enqueue(reason string) error {
	snapshot, err := s.exporter.ExportSnapshot()
	if err != nil {
		logging.Error("Failed to export snapshot for offline queue", err, nil)
		return err
	}

	item, err := s.queue.Enqueue(queue.ActionSync, snapshot)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			logging.Warn("Offline queue full, dropping sync attempt", map[string]interface{}{
				"reason": reason,
				"length": s.queue.Len(),
			})
		} else {
			logging.Error("Failed to enqueue offline sync", err, nil)
		}
		return err
	}

	s.notifier.Publish(syncpkg.StatusQueued, "offline, sync queued", nil)
	logging.Info("Offline, sync queued", map[string]interface{}{
		"reason": reason,
		"id":     item.ID,
		"length": s.queue.Len(),
	})
	return nil
}

// DrainQueue processes the offline queue front to back. Each entry uploads
// the current local snapshot; the first failure stops the drain and stays
// at the front. When the failure is a collision with another upload, a
// debounced upload is armed so the drain resumes once that upload is done.
func (s *Scheduler) DrainQueue(ctx context.Context) (int, error) {
	if s.queue.Len() == 0 {
		return 0, nil
	}

	logging.Info("Processing offline queue", map[string]interface{}{"count": s.queue.Len()})

	processed, err := s.queue.Drain(ctx, func(ctx context.Context, item *queue.QueueItem) error {
		syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
		defer cancel()
		_, err := s.client.Upload(syncCtx)
		return err
	})
	if processed > 0 {
		s.mu.Lock()
		s.lastSyncTime = time.Now()
		s.mu.Unlock()
	}

	if errors.Is(err, syncpkg.ErrSyncInProgress) {
		logging.Debug("Offline queue drain collided with an upload, retrying later", nil)
		s.Schedule()
	}

	logging.Info("Offline queue processed", map[string]interface{}{
		"processed": processed,
		"remaining": s.queue.Len(),
	})
	return processed, err
}

// SyncNow cancels any pending debounce and uploads immediately. Offline, it
// queues the snapshot and reports the remote as unavailable.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	s.cancelPending()

	if !s.IsOnline() {
		if err := s.enqueue("manual"); err != nil {
			return err
		}
		return apperrors.New(apperrors.ErrRemoteUnavailable, "offline, sync queued")
	}
	return s.runSync(ctx, "manual")
}

// =====================================================
// Online State
// =====================================================

// SetOnlineStatus changes the online status. Going online drains the
// offline queue immediately.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	ctx := s.baseCtx
	drain := isOnline && !wasOnline && !s.halted
	if drain {
		s.inflight.Add(1)
	}
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}

	logging.Info("Online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  isOnline,
	})

	if !isOnline {
		s.notifier.Publish(syncpkg.StatusOffline, "offline", nil)
		return
	}

	s.notifier.Publish(syncpkg.StatusIdle, "online", nil)
	if !drain {
		return
	}
	go func() {
		defer s.inflight.Done()
		if _, err := s.DrainQueue(ctx); err != nil {
			logging.Warn("Offline queue drain incomplete", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// =====================================================
// Lifecycle
// =====================================================

// Start starts the periodic fallback loop and, when configured, the
// connectivity probe. Debounced uploads use ctx from then on.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.halted = false
	s.baseCtx = ctx
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.periodicSyncLoop(ctx, stopCh)

	if s.probeInterval > 0 && s.pinger != nil {
		s.wg.Add(1)
		go s.probeLoop(ctx, stopCh)
	}

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"debounce_ms":      s.debounceDelay.Milliseconds(),
		"periodic_minutes": s.periodicInterval.Minutes(),
		"probe_ms":         s.probeInterval.Milliseconds(),
	})
}

// Stop cancels the pending debounce, stops the background loops and waits
// for a debounced upload or online drain that is already running. Schedule
// is a no-op afterwards until the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.halted = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	wasRunning := s.isRunning
	if wasRunning {
		s.isRunning = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.inflight.Wait()

	if wasRunning {
		logging.Info("Background sync scheduler stopped", nil)
	}
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// periodicSyncLoop forces an upload every period, bounding staleness while
// continuous edits keep re-arming the debounce.
func (s *Scheduler) periodicSyncLoop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	if s.IsOnline() && s.queue.Len() > 0 {
		if _, err := s.DrainQueue(ctx); err != nil {
			logging.Warn("Offline queue drain incomplete", map[string]interface{}{"error": err.Error()})
		}
	}

	ticker := time.NewTicker(s.periodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() || s.session.UserID() == "" {
				continue
			}
			_ = s.runSync(ctx, "periodic")
		}
	}
}

// probeLoop derives the online flag from remote reachability.
func (s *Scheduler) probeLoop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, s.probeInterval)
			err := s.pinger.Ping(probeCtx)
			cancel()
			if err != nil {
				logging.Debug("Connectivity probe failed", map[string]interface{}{"error": err.Error()})
			}
			s.SetOnlineStatus(err == nil)
		}
	}
}

// =====================================================
// Teardown
// =====================================================

// Flush hands a non-empty offline queue to the beacon transport without
// waiting for delivery. The current local snapshot is sent; if it cannot be
// exported the newest queued snapshot is used. It reports whether a beacon
// was sent.
func (s *Scheduler) Flush() bool {
	if s.beacon == nil || s.queue.Len() == 0 || s.session.UserID() == "" {
		return false
	}

	snapshot, err := s.exporter.ExportSnapshot()
	if err != nil {
		logging.Warn("Flush falling back to queued snapshot", map[string]interface{}{"error": err.Error()})
		items := s.queue.List()
		snapshot = items[len(items)-1].Snapshot
	}
	if snapshot == nil {
		return false
	}

	doc := &models.RemoteDocument{
		UserID:      s.session.UserID(),
		Data:        snapshot,
		UpdatedAt:   time.Now().UTC(),
		DeviceID:    s.session.DeviceID(),
		SyncVersion: s.session.SyncVersion() + 1,
	}
	s.beacon.SendBeacon(doc)

	logging.Info("Offline queue flushed by beacon", map[string]interface{}{
		"user_id": doc.UserID,
		"queued":  s.queue.Len(),
	})
	return true
}

// =====================================================
// Status
// =====================================================

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	IsRunning       bool       `json:"isRunning"`
	IsOnline        bool       `json:"isOnline"`
	Enabled         bool       `json:"enabled"`
	SyncInProgress  bool       `json:"syncInProgress"`
	DebouncePending bool       `json:"debouncePending"`
	LastSyncTime    *time.Time `json:"lastSyncTime,omitempty"`
	PendingItems    int        `json:"pendingItems"`
	PendingChanges  int        `json:"pendingChanges"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:       s.isRunning,
		IsOnline:        s.isOnline,
		SyncInProgress:  s.syncInProgress,
		DebouncePending: s.timer != nil,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	s.mu.RUnlock()

	status.Enabled = s.session.Enabled()
	status.PendingItems = s.queue.Len()
	status.PendingChanges = s.session.ChangeCount()
	return status
}

// Queue returns the offline queue.
func (s *Scheduler) Queue() *queue.SyncQueue {
	return s.queue
}
