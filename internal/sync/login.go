package sync

import (
	"context"
	"fmt"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/logging"
	"github.com/kimhsiao/resaletally/internal/models"
	"github.com/kimhsiao/resaletally/internal/uuid"
)

// Login switches the session to code and merges that user's remote data
// into the local store. Local data is backed up first. If the new identity
// cannot be loaded, the backup is re-imported, the previous identity is
// restored and an IDENTITY_LOAD_FAILED error is returned.
func (c *Client) Login(ctx context.Context, code string) error {
	userID, err := uuid.ParseUserCode(code)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidUserID, "invalid user code", err)
	}

	if !c.inFlight.TryLock() {
		return ErrSyncInProgress
	}
	defer c.inFlight.Unlock()

	if userID == c.session.UserID() {
		_, err := c.download(ctx)
		return err
	}

	backup, err := c.store.ExportSnapshot()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to back up local data", err)
	}
	c.saveBackup(backup)

	previous := c.session.Identity()
	if err := c.session.SetUserID(userID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to switch user code", err)
	}

	logging.Info("Switching sync identity", map[string]interface{}{
		"from": previous.UserID,
		"to":   userID,
	})

	if _, err := c.download(ctx); err != nil {
		c.rollback(backup, previous)
		return apperrors.Wrap(apperrors.ErrIdentityLoadFailed,
			fmt.Sprintf("could not load data for user code %s", userID), err)
	}

	return nil
}

// RestoreBackup re-imports the login backup stored under hash.
func (c *Client) RestoreBackup(hash string) error {
	if c.backups == nil {
		return apperrors.New(apperrors.ErrStorage, "backups are not configured")
	}
	if !c.inFlight.TryLock() {
		return ErrSyncInProgress
	}
	defer c.inFlight.Unlock()

	snapshot, err := c.backups.Load(hash)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotFound, "failed to load backup", err)
	}
	if err := c.store.ImportSnapshot(snapshot); err != nil {
		return err
	}
	c.session.IncrementChanges()
	c.notifier.Refresh()

	logging.Info("Restored backup", map[string]interface{}{"hash": hash})
	return nil
}

func (c *Client) saveBackup(snapshot *models.Snapshot) {
	if c.backups == nil {
		return
	}

	hash, err := c.backups.Save(snapshot)
	if err != nil {
		logging.Warn("Failed to write login backup", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := c.session.SetBackupHash(hash); err != nil {
		logging.Warn("Failed to record login backup", map[string]interface{}{"error": err.Error()})
	}
	if c.config.BackupKeep > 0 {
		if _, err := c.backups.Prune(c.config.BackupKeep, hash); err != nil {
			logging.Warn("Failed to prune login backups", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (c *Client) rollback(backup *models.Snapshot, previous Identity) {
	if err := c.store.ImportSnapshot(backup); err != nil {
		logging.Error("Failed to restore local data after failed login", err, nil)
	}
	if err := c.session.RestoreIdentity(previous); err != nil {
		logging.Error("Failed to restore previous user code", err, nil)
	}
	c.notifier.Refresh()

	logging.Warn("Login rolled back", map[string]interface{}{"user_id": previous.UserID})
}
