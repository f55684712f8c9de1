package models

import "time"

// ConflictLog records a shared id whose local and remote versions differed
// during a merge, and which side was kept.
type ConflictLog struct {
	ID              string     `db:"id" json:"id"`
	Collection      Collection `db:"collection" json:"collection"`
	ItemID          string     `db:"item_id" json:"item_id"`
	LocalTimestamp  int64      `db:"local_timestamp" json:"local_timestamp,omitempty"`
	RemoteTimestamp int64      `db:"remote_timestamp" json:"remote_timestamp,omitempty"`
	Resolution      string     `db:"resolution" json:"resolution"` // kept_local, kept_remote
	Policy          string     `db:"policy" json:"policy"`
	DetectedAt      int64      `db:"detected_at" json:"detected_at"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns the DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}
