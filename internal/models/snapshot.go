package models

import "time"

// SnapshotVersion is the data format version written on export.
const SnapshotVersion = "1.2"

// Snapshot is the full aggregate of persisted collections at one instant and
// the unit of synchronization. A nil field means the collection is absent:
// importing it leaves the local collection untouched, while an empty
// non-nil value clears it.
type Snapshot struct {
	Sales             []Sale           `json:"sales"`
	Materials         []Material       `json:"materials"`
	Settings          *Settings        `json:"settings"`
	Goals             map[string]Goal  `json:"goals"`
	Records           *Records         `json:"records"`
	FavoriteMaterials []string         `json:"favoriteMaterials"`
	CustomShipping    CustomShipping   `json:"customShipping"`
	CustomPlatforms   []CustomPlatform `json:"customPlatforms"`
	ExportDate        string           `json:"exportDate,omitempty"`
	Version           string           `json:"version,omitempty"`
}

// NewSnapshot returns a snapshot with every collection present and empty.
func NewSnapshot() *Snapshot {
	settings := DefaultSettings()
	records := DefaultRecords()
	return &Snapshot{
		Sales:             []Sale{},
		Materials:         []Material{},
		Settings:          &settings,
		Goals:             map[string]Goal{},
		Records:           &records,
		FavoriteMaterials: []string{},
		CustomShipping:    CustomShipping{},
		CustomPlatforms:   []CustomPlatform{},
		Version:           SnapshotVersion,
	}
}

// Stamp sets the export metadata.
func (s *Snapshot) Stamp(now time.Time) {
	s.ExportDate = now.UTC().Format(time.RFC3339Nano)
	s.Version = SnapshotVersion
}

// SaleIDs returns the ids of all sales.
func (s *Snapshot) SaleIDs() []string {
	ids := make([]string, 0, len(s.Sales))
	for _, sale := range s.Sales {
		ids = append(ids, sale.ID)
	}
	return ids
}

// FindSale returns the sale with id, if present.
func (s *Snapshot) FindSale(id string) (Sale, bool) {
	for _, sale := range s.Sales {
		if sale.ID == id {
			return sale, true
		}
	}
	return Sale{}, false
}

// FindMaterial returns the material with id, if present.
func (s *Snapshot) FindMaterial(id string) (Material, bool) {
	for _, m := range s.Materials {
		if m.ID == id {
			return m, true
		}
	}
	return Material{}, false
}
