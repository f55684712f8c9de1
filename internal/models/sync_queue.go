package models

import (
	"encoding/json"
	"time"
)

// SyncQueue is a persisted offline sync attempt.
type SyncQueue struct {
	ID        string          `db:"id" json:"id"`
	Action    string          `db:"action" json:"action"`
	Payload   json.RawMessage `db:"payload" json:"data"`
	CreatedAt int64           `db:"created_at" json:"timestamp"` // Unix milliseconds
}

// TableName returns the table name for SyncQueue.
func (SyncQueue) TableName() string {
	return "sync_queue"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (q *SyncQueue) CreatedAtTime() time.Time {
	return time.UnixMilli(q.CreatedAt)
}
