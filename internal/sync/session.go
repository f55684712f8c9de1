package sync

import (
	"fmt"
	"sort"
	"strconv"
	gosync "sync"
	"time"

	"github.com/kimhsiao/resaletally/internal/logging"
	"github.com/kimhsiao/resaletally/internal/uuid"
)

// Meta keys persisted by Session.
const (
	MetaUserID       = "user_id"
	MetaDeviceID     = "device_id"
	MetaLastSync     = "last_sync"
	MetaLastDataHash = "last_data_hash"
	MetaSyncVersion  = "sync_version"
	MetaSyncEnabled  = "sync_enabled"
	MetaBackupHash   = "backup_hash"
)

// MetaStore persists session state as key/value pairs.
type MetaStore interface {
	GetMeta(key string) (string, bool, error)
	SetMeta(key, value string) error
	DeleteMeta(key string) error
}

// MetaBatcher is implemented by stores that write several keys atomically.
type MetaBatcher interface {
	SetMetas(values map[string]string) error
}

// Session is the process-wide sync state: identity, upload gate and
// counters. It is loaded once at startup and shared by the client, the
// scheduler and the watcher. Persistent fields are written through on every
// change; the retry and change counters live in memory only.
type Session struct {
	mu    gosync.RWMutex
	store MetaStore

	userID       string
	deviceID     string
	lastSync     time.Time
	lastDataHash string
	syncVersion  int64
	enabled      bool
	backupHash   string

	retryCount  int
	changeCount int
}

// Identity is the part of a session swapped by a login.
type Identity struct {
	UserID       string
	LastDataHash string
	SyncVersion  int64
}

// LoadSession reads the session from store. A missing user code or device id
// is generated and persisted.
func LoadSession(store MetaStore) (*Session, error) {
	s := &Session{store: store, enabled: true}

	get := func(key string) (string, error) {
		v, _, err := store.GetMeta(key)
		if err != nil {
			return "", fmt.Errorf("load session %s: %w", key, err)
		}
		return v, nil
	}

	var err error
	if s.userID, err = get(MetaUserID); err != nil {
		return nil, err
	}
	if s.deviceID, err = get(MetaDeviceID); err != nil {
		return nil, err
	}
	if s.lastDataHash, err = get(MetaLastDataHash); err != nil {
		return nil, err
	}
	if s.backupHash, err = get(MetaBackupHash); err != nil {
		return nil, err
	}

	lastSync, err := get(MetaLastSync)
	if err != nil {
		return nil, err
	}
	if lastSync != "" {
		ms, perr := strconv.ParseInt(lastSync, 10, 64)
		if perr != nil {
			logging.Warn("Ignoring unreadable last sync time", map[string]interface{}{"value": lastSync})
		} else {
			s.lastSync = time.UnixMilli(ms).UTC()
		}
	}

	version, err := get(MetaSyncVersion)
	if err != nil {
		return nil, err
	}
	if version != "" {
		if s.syncVersion, err = strconv.ParseInt(version, 10, 64); err != nil {
			logging.Warn("Ignoring unreadable sync version", map[string]interface{}{"value": version})
			s.syncVersion = 0
		}
	}

	enabled, err := get(MetaSyncEnabled)
	if err != nil {
		return nil, err
	}
	if enabled != "" {
		s.enabled = enabled == "true"
	}

	if s.deviceID == "" {
		s.deviceID = uuid.NewDeviceID()
		if err := store.SetMeta(MetaDeviceID, s.deviceID); err != nil {
			return nil, fmt.Errorf("persist device id: %w", err)
		}
	}
	if s.userID == "" {
		code, err := uuid.NewUserCode()
		if err != nil {
			return nil, err
		}
		s.userID = code
		if err := store.SetMeta(MetaUserID, code); err != nil {
			return nil, fmt.Errorf("persist user id: %w", err)
		}
		logging.Info("Generated sync user code", map[string]interface{}{"user_id": code})
	}

	return s, nil
}

// UserID returns the current sync code.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// DeviceID returns the persistent device id.
func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// LastSync returns the time of the last successful upload or download, or
// the zero time.
func (s *Session) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// LastDataHash returns the hash of the last uploaded snapshot.
func (s *Session) LastDataHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDataHash
}

// SyncVersion returns the last known remote sync_version.
func (s *Session) SyncVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncVersion
}

// Enabled reports whether automatic sync is on.
func (s *Session) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// BackupHash returns the hash of the last login backup.
func (s *Session) BackupHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backupHash
}

// RetryCount returns the retry counter of the current attempt.
func (s *Session) RetryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryCount
}

// ChangeCount returns the number of local changes since the last upload.
func (s *Session) ChangeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changeCount
}

// Identity returns the current identity for a later RestoreIdentity.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{
		UserID:       s.userID,
		LastDataHash: s.lastDataHash,
		SyncVersion:  s.syncVersion,
	}
}

// SetUserID switches to code and resets the upload gate and version, so the
// next upload under the new code is never skipped.
func (s *Session) SetUserID(code string) error {
	return s.RestoreIdentity(Identity{UserID: code})
}

// RegenerateUserID assigns a fresh random code.
func (s *Session) RegenerateUserID() (string, error) {
	code, err := uuid.NewUserCode()
	if err != nil {
		return "", err
	}
	if err := s.SetUserID(code); err != nil {
		return "", err
	}
	return code, nil
}

// RestoreIdentity persists id as the current identity.
func (s *Session) RestoreIdentity(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(map[string]string{
		MetaUserID:       id.UserID,
		MetaLastDataHash: id.LastDataHash,
		MetaSyncVersion:  strconv.FormatInt(id.SyncVersion, 10),
	}); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}

	s.userID = id.UserID
	s.lastDataHash = id.LastDataHash
	s.syncVersion = id.SyncVersion
	return nil
}

// SetEnabled turns automatic sync on or off.
func (s *Session) SetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetMeta(MetaSyncEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("persist sync enabled: %w", err)
	}
	s.enabled = enabled
	return nil
}

// SetBackupHash records the latest login backup.
func (s *Session) SetBackupHash(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetMeta(MetaBackupHash, hash); err != nil {
		return fmt.Errorf("persist backup hash: %w", err)
	}
	s.backupHash = hash
	return nil
}

// IncrementChanges counts one local change and returns the new total.
func (s *Session) IncrementChanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeCount++
	return s.changeCount
}

// ResetChanges zeroes the change counter.
func (s *Session) ResetChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeCount = 0
}

// SetRetryCount records the retry number of the running attempt.
func (s *Session) SetRetryCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount = n
}

// RecordUpload persists the state of a successful upload.
func (s *Session) RecordUpload(hash string, version int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(map[string]string{
		MetaLastDataHash: hash,
		MetaSyncVersion:  strconv.FormatInt(version, 10),
		MetaLastSync:     strconv.FormatInt(at.UnixMilli(), 10),
	}); err != nil {
		return fmt.Errorf("persist upload state: %w", err)
	}

	s.lastDataHash = hash
	s.syncVersion = version
	s.lastSync = at.UTC()
	s.changeCount = 0
	s.retryCount = 0
	return nil
}

// RecordDownload persists the state of a successful download. The version
// only moves forward.
func (s *Session) RecordDownload(at time.Time, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version < s.syncVersion {
		version = s.syncVersion
	}
	if err := s.persist(map[string]string{
		MetaSyncVersion: strconv.FormatInt(version, 10),
		MetaLastSync:    strconv.FormatInt(at.UnixMilli(), 10),
	}); err != nil {
		return fmt.Errorf("persist download state: %w", err)
	}

	s.syncVersion = version
	s.lastSync = at.UTC()
	s.retryCount = 0
	return nil
}

// persist writes values all or nothing. Stores without MetaBatcher get the
// keys one by one, and a failure puts the keys already written back to
// their previous values. Callers hold s.mu.
func (s *Session) persist(values map[string]string) error {
	if b, ok := s.store.(MetaBatcher); ok {
		return b.SetMetas(values)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type previous struct {
		key    string
		value  string
		exists bool
	}
	written := make([]previous, 0, len(keys))
	for _, k := range keys {
		old, exists, err := s.store.GetMeta(k)
		if err == nil {
			err = s.store.SetMeta(k, values[k])
		}
		if err != nil {
			for i := len(written) - 1; i >= 0; i-- {
				p := written[i]
				var undoErr error
				if p.exists {
					undoErr = s.store.SetMeta(p.key, p.value)
				} else {
					undoErr = s.store.DeleteMeta(p.key)
				}
				if undoErr != nil {
					logging.Error("Failed to roll back session state", undoErr, map[string]interface{}{"key": p.key})
				}
			}
			return fmt.Errorf("%s: %w", k, err)
		}
		written = append(written, previous{key: k, value: old, exists: exists})
	}
	return nil
}
