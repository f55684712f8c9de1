package db

import (
	"database/sql"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
	"github.com/kimhsiao/resaletally/internal/uuid"
)

// =====================================================
// Sync Metadata Operations
// =====================================================

// GetMeta returns the value stored under key and whether it exists.
func (r *Repository) GetMeta(key string) (string, bool, error) {
	stmt, err := r.PrepareStmt(`SELECT value FROM sync_meta WHERE key = ?`)
	if err != nil {
		return "", false, err
	}

	var value string
	if err := stmt.QueryRow(key).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, apperrors.Wrap(apperrors.ErrDatabase, "get meta "+key, err)
	}
	return value, true, nil
}

// SetMeta stores value under key.
func (r *Repository) SetMeta(key, value string) error {
	query := `
	INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.Exec(query, key, value, r.now().UnixMilli()); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "set meta "+key, err)
	}
	return nil
}

// SetMetas stores every pair in one transaction.
func (r *Repository) SetMetas(values map[string]string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin set meta", err)
	}
	query := `
	INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	now := r.now().UnixMilli()
	for key, value := range values {
		if _, err := tx.Exec(query, key, value, now); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrDatabase, "set meta "+key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit set meta", err)
	}
	return nil
}

// DeleteMeta removes key.
func (r *Repository) DeleteMeta(key string) error {
	if _, err := r.db.Exec(`DELETE FROM sync_meta WHERE key = ?`, key); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "delete meta "+key, err)
	}
	return nil
}

// =====================================================
// Sync Queue Operations
// =====================================================

// LoadSyncQueue returns the persisted offline queue in FIFO order.
func (r *Repository) LoadSyncQueue() ([]*models.SyncQueue, error) {
	rows, err := r.db.Query(`SELECT id, action, payload, created_at FROM sync_queue ORDER BY position ASC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "load sync queue", err)
	}
	defer rows.Close()

	var items []*models.SyncQueue
	for rows.Next() {
		var item models.SyncQueue
		var payload string
		if err := rows.Scan(&item.ID, &item.Action, &payload, &item.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan sync queue", err)
		}
		item.Payload = []byte(payload)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "iterate sync queue", err)
	}
	return items, nil
}

// SaveSyncQueue replaces the persisted offline queue with items, in order.
func (r *Repository) SaveSyncQueue(items []*models.SyncQueue) error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin sync queue save", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sync_queue`); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "clear sync queue", err)
	}
	for i, item := range items {
		_, err := tx.Exec(`INSERT INTO sync_queue (position, id, action, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			i, item.ID, item.Action, string(item.Payload), item.CreatedAt)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "insert sync queue item", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit sync queue", err)
	}
	return nil
}

// =====================================================
// Conflict Log Operations
// =====================================================

// CreateConflictLog creates a new conflict log entry.
func (r *Repository) CreateConflictLog(log *models.ConflictLog) error {
	if log.ID == "" {
		log.ID = uuid.New()
	}
	if log.DetectedAt == 0 {
		log.DetectedAt = r.now().Unix()
	}

	query := `
	INSERT INTO conflict_log (id, collection, item_id, local_timestamp, remote_timestamp, resolution, policy, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, log.ID, string(log.Collection), log.ItemID, log.LocalTimestamp,
		log.RemoteTimestamp, log.Resolution, log.Policy, log.DetectedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "create conflict log", err)
	}
	return nil
}

// ListConflictLogs returns the most recent conflict log entries.
func (r *Repository) ListConflictLogs(limit int) ([]*models.ConflictLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
	SELECT id, collection, item_id, local_timestamp, remote_timestamp, resolution, policy, detected_at
	FROM conflict_log ORDER BY detected_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list conflict logs", err)
	}
	defer rows.Close()

	var logs []*models.ConflictLog
	for rows.Next() {
		var log models.ConflictLog
		var collection string
		if err := rows.Scan(&log.ID, &collection, &log.ItemID, &log.LocalTimestamp,
			&log.RemoteTimestamp, &log.Resolution, &log.Policy, &log.DetectedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan conflict log", err)
		}
		log.Collection = models.Collection(collection)
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
