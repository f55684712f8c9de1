package conflict

import (
	"github.com/kimhsiao/resaletally/internal/models"
)

// Policy names the reconciliation rule applied to a collection.
type Policy string

const (
	// PolicyNewerTimestamp keeps the local entry only when its date is strictly newer.
	PolicyNewerTimestamp Policy = "newer_timestamp"
	// PolicyLocalWins keeps the local entry for every shared key.
	PolicyLocalWins Policy = "local_wins"
	// PolicyUnion keeps every id from both sides.
	PolicyUnion Policy = "union"
	// PolicyMaxValue keeps the greater value per metric.
	PolicyMaxValue Policy = "max_value"
)

// Side identifies which input a merged value came from.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Resolution returns the conflict log resolution string for the side kept.
func (s Side) Resolution() string {
	return "kept_" + string(s)
}

// Conflict is a key present on both sides with different values.
type Conflict struct {
	Collection      models.Collection
	ItemID          string
	Policy          Policy
	Winner          Side
	LocalTimestamp  int64
	RemoteTimestamp int64
}

// Report summarizes a merge.
type Report struct {
	Conflicts []Conflict

	// LocalOnly counts entities only the local side had.
	LocalOnly int
	// RemoteOnly counts entities only the remote side had.
	RemoteOnly int
}

func (r *Report) add(c Conflict) {
	r.Conflicts = append(r.Conflicts, c)
}

// RemoteWins counts conflicts settled in favor of the remote side.
func (r *Report) RemoteWins() int {
	n := 0
	for _, c := range r.Conflicts {
		if c.Winner == SideRemote {
			n++
		}
	}
	return n
}

// ConflictLogs converts the report into log entries stamped with detectedAt
// (Unix seconds).
func (r *Report) ConflictLogs(detectedAt int64) []*models.ConflictLog {
	logs := make([]*models.ConflictLog, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		logs = append(logs, &models.ConflictLog{
			Collection:      c.Collection,
			ItemID:          c.ItemID,
			LocalTimestamp:  c.LocalTimestamp,
			RemoteTimestamp: c.RemoteTimestamp,
			Resolution:      c.Winner.Resolution(),
			Policy:          string(c.Policy),
			DetectedAt:      detectedAt,
		})
	}
	return logs
}
