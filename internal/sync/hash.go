package sync

import (
	"encoding/json"
	"fmt"

	"github.com/kimhsiao/resaletally/internal/models"
	"github.com/kimhsiao/resaletally/internal/sync/storage"
)

// HashSnapshot returns the content hash used to skip redundant uploads.
// exportDate is cleared first so unchanged data hashes equally across exports.
func HashSnapshot(snapshot *models.Snapshot) (string, error) {
	if snapshot == nil {
		return "", fmt.Errorf("nil snapshot")
	}

	c := *snapshot
	c.ExportDate = ""

	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return storage.CalculateHash(data), nil
}
