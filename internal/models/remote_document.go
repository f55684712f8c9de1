package models

import "time"

// RemoteDocument is the per-user row held by the remote store.
type RemoteDocument struct {
	UserID      string    `db:"user_id" json:"user_id"`
	Data        *Snapshot `db:"data" json:"data"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	DeviceID    string    `db:"device_id" json:"device_id"`
	SyncVersion int64     `db:"sync_version" json:"sync_version"`
}

// TableName returns the default remote table name.
func (RemoteDocument) TableName() string {
	return "user_data"
}
