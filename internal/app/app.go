// Package app wires the entity store, the sync client and its background
// machinery from configuration. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/kimhsiao/resaletally/internal/config"
	"github.com/kimhsiao/resaletally/internal/db"
	"github.com/kimhsiao/resaletally/internal/logging"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
	"github.com/kimhsiao/resaletally/internal/sync/queue"
	"github.com/kimhsiao/resaletally/internal/sync/remote"
	"github.com/kimhsiao/resaletally/internal/sync/scheduler"
	"github.com/kimhsiao/resaletally/internal/sync/storage"
	"github.com/kimhsiao/resaletally/internal/sync/watcher"
)

// BackupDirName is the login backup directory inside the data dir.
const BackupDirName = "backups"

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	DB        *db.DB
	Repo      *db.Repository
	Session   *syncpkg.Session
	Notifier  *syncpkg.Notifier
	Remote    syncpkg.RemoteStore
	Client    *syncpkg.Client
	Queue     *queue.SyncQueue
	Scheduler *scheduler.Scheduler
	Watcher   *watcher.Watcher
	Trigger   *syncpkg.TriggerFile
	Backups   *storage.BackupStore

	closeRemote func() error

	mu          sync.Mutex
	ctx         context.Context
	started     bool
	syncRunning bool
}

// New opens the store and connects the configured remote backend.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	rs, closeRemote, err := NewRemote(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := NewWithRemote(cfg, rs)
	if err != nil {
		if closeRemote != nil {
			_ = closeRemote()
		}
		return nil, err
	}
	a.closeRemote = closeRemote
	return a, nil
}

// NewRemote builds the remote store named by cfg.Remote.Backend. The
// returned close function may be nil.
func NewRemote(ctx context.Context, cfg *config.Config) (syncpkg.RemoteStore, func() error, error) {
	rc := cfg.Remote
	switch rc.Backend {
	case config.BackendMemory, "":
		logging.Warn("Using in-memory remote store, data is not shared between runs", nil)
		return remote.NewMemoryStore(), nil, nil

	case config.BackendPostgREST:
		s, err := remote.NewPostgRESTStore(remote.PostgRESTConfig{
			URL:    rc.PostgREST.URL,
			APIKey: rc.PostgREST.APIKey,
			Table:  rc.Table,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgrest remote: %w", err)
		}
		return s, nil, nil

	case config.BackendPostgres:
		s, err := remote.NewPostgresStore(ctx, rc.Postgres.DSN, rc.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres remote: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("postgres remote: %w", err)
		}
		return s, s.Close, nil

	case config.BackendS3:
		s, err := remote.NewObjectStore(remote.ObjectStoreConfig{
			Provider:  rc.S3.Provider,
			Endpoint:  rc.S3.Endpoint,
			Region:    rc.S3.Region,
			Bucket:    rc.S3.Bucket,
			AccessKey: rc.S3.AccessKey,
			SecretKey: rc.S3.SecretKey,
			AccountID: rc.S3.AccountID,
			UseSSL:    rc.S3.UseSSL,
			Prefix:    rc.S3.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 remote: %w", err)
		}
		return s, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown remote backend %q", rc.Backend)
	}
}

// NewWithRemote opens the store in cfg.DataDir and builds every component
// around rs.
func NewWithRemote(cfg *config.Config, rs syncpkg.RemoteStore) (*App, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	repo := db.NewRepository(database.DB)

	a := &App{
		Config:   cfg,
		DB:       database,
		Repo:     repo,
		Remote:   rs,
		Notifier: syncpkg.NewNotifier(),
		Trigger:  syncpkg.NewTriggerFile(cfg.DataDir, cfg.Sync.TriggerWindow),
		Backups:  storage.NewBackupStore(filepath.Join(cfg.DataDir, BackupDirName)),
	}

	a.Session, err = syncpkg.LoadSession(repo)
	if err != nil {
		a.closeStore()
		return nil, err
	}

	a.Client = syncpkg.NewClient(repo, a.Session, rs, a.Notifier, &syncpkg.ClientConfig{
		RetryBaseDelay: cfg.Sync.RetryBaseDelay,
		MaxRetries:     cfg.Sync.MaxRetries,
		BackupKeep:     cfg.Sync.BackupKeep,
	})
	a.Client.SetTrigger(a.Trigger)
	a.Client.SetBackups(a.Backups)

	a.Queue = queue.NewSyncQueue(cfg.Sync.QueueMaxSize, repo)
	if err := a.Queue.Load(); err != nil {
		a.closeStore()
		return nil, err
	}

	deps := scheduler.Deps{
		Client:   a.Client,
		Session:  a.Session,
		Queue:    a.Queue,
		Exporter: repo,
		Notifier: a.Notifier,
	}
	if b, ok := rs.(syncpkg.BeaconSender); ok {
		deps.Beacon = b
	}
	if p, ok := rs.(syncpkg.Pinger); ok {
		deps.Pinger = p
	}
	a.Scheduler = scheduler.NewScheduler(deps, &scheduler.SchedulerConfig{
		DebounceDelay:    cfg.Sync.DebounceDelay,
		PeriodicInterval: cfg.Sync.PeriodicInterval,
		ProbeInterval:    cfg.Sync.ProbeInterval,
	})
	a.Watcher = watcher.New(repo, a.Session, a.Scheduler)

	logging.Info("Application initialized", map[string]interface{}{
		"data_dir":  cfg.DataDir,
		"backend":   cfg.Remote.Backend,
		"user_id":   a.Session.UserID(),
		"device_id": a.Session.DeviceID(),
		"queued":    a.Queue.Len(),
	})
	return a, nil
}

// Start runs the initial download, then enables the watcher, the scheduler
// and the cross-process trigger. Remote failures are logged, not returned.
// With sync disabled nothing runs until EnableSync.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}
	a.started = true
	a.ctx = ctx

	if !a.Config.Sync.Enabled || !a.Session.Enabled() {
		logging.Info("Sync disabled, background sync not started", nil)
		return nil
	}
	a.startSync(ctx, ctx)
	return nil
}

// EnableSync persists the enabled flag and starts whatever Start skipped
// while sync was off: the initial download, the scheduler and the trigger
// watch. ctx bounds the download only; background work lives as long as the
// context given to Start. Before Start, or once the machinery runs, only
// the watcher is attached.
func (a *App) EnableSync(ctx context.Context) error {
	if err := a.Session.SetEnabled(true); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Config.Sync.Enabled {
		logging.Info("Sync disabled by configuration, background sync not started", nil)
		return nil
	}
	if !a.started || a.syncRunning {
		a.Watcher.Enable()
		return nil
	}
	a.startSync(ctx, a.ctx)
	return nil
}

// DisableSync persists the disabled flag and stops observing local changes.
// The scheduler keeps running but skips every upload while disabled.
func (a *App) DisableSync() error {
	if err := a.Session.SetEnabled(false); err != nil {
		return err
	}
	a.Watcher.Disable()
	return nil
}

// SyncRunning reports whether the background sync machinery was started.
func (a *App) SyncRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncRunning
}

// startSync runs the initial download with ctx and starts the background
// components under life. Callers hold a.mu.
func (a *App) startSync(ctx, life context.Context) {
	a.syncRunning = true

	if _, err := a.Client.Download(ctx); err != nil {
		logging.Warn("Initial download failed", map[string]interface{}{"error": err.Error()})
	}

	a.Watcher.Enable()
	a.Scheduler.Start(life)

	err := a.Trigger.Watch(life, a.Session.UserID, func(tr *syncpkg.Trigger) {
		if !a.Session.Enabled() {
			return
		}
		logging.Info("Sync trigger received", map[string]interface{}{
			"user_id": tr.UserID,
			"origin":  tr.Origin,
		})
		if _, err := a.Client.Download(life); err != nil && !errors.Is(err, syncpkg.ErrSyncInProgress) {
			logging.Warn("Download after trigger failed", map[string]interface{}{"error": err.Error()})
		}
	})
	if err != nil {
		logging.Warn("Cross-process trigger unavailable", map[string]interface{}{"error": err.Error()})
	}
}

// Shutdown flushes the offline queue through the beacon transport, waits up
// to timeout for delivery and releases every resource.
func (a *App) Shutdown(timeout time.Duration) error {
	a.Watcher.Disable()
	a.Scheduler.Stop()

	if a.Scheduler.Flush() {
		if b, ok := a.Remote.(syncpkg.BeaconSender); ok && !b.WaitBeacons(timeout) {
			logging.Warn("Beacon still in flight at shutdown", map[string]interface{}{"timeout_ms": timeout.Milliseconds()})
		}
	}

	_ = a.Trigger.Close()
	return a.Close()
}

// Close releases the store and the remote without flushing.
func (a *App) Close() error {
	var errs []error
	if a.closeRemote != nil {
		errs = append(errs, a.closeRemote())
		a.closeRemote = nil
	}
	errs = append(errs, a.closeStore())
	return errors.Join(errs...)
}

func (a *App) closeStore() error {
	if a.DB == nil {
		return nil
	}
	err := errors.Join(a.Repo.Close(), a.DB.Close())
	a.DB = nil
	return err
}
