package db

import (
	"github.com/kimhsiao/resaletally/internal/models"
)

// SaleRepository defines operations for sale persistence.
type SaleRepository interface {
	GetSales() ([]models.Sale, error)
	GetSale(id string) (*models.Sale, error)
	ListSales(filter SalesFilter) ([]models.Sale, error)
	SaveSale(sale *models.Sale) error
	UpdateSale(id string, patch func(*models.Sale) error) (*models.Sale, error)
	DeleteSale(id string) error
}

// MaterialRepository defines operations for material persistence.
type MaterialRepository interface {
	GetMaterials() ([]models.Material, error)
	GetMaterial(id string) (*models.Material, error)
	SaveMaterial(material *models.Material) error
	UpdateMaterial(id string, patch func(*models.Material) error) (*models.Material, error)
	DeleteMaterial(id string) error
}

// SnapshotStore exports and imports the whole dataset.
type SnapshotStore interface {
	ExportSnapshot() (*models.Snapshot, error)
	ImportSnapshot(snapshot *models.Snapshot) error
}

// ChangeSource announces entity mutations.
type ChangeSource interface {
	// Subscribe registers listener and returns a function that removes it.
	Subscribe(listener models.ChangeListener) func()
}

// MetaRepository stores sync metadata as key/value pairs.
type MetaRepository interface {
	GetMeta(key string) (string, bool, error)
	SetMeta(key, value string) error
	SetMetas(values map[string]string) error
	DeleteMeta(key string) error
}

// SyncQueueRepository persists the offline queue.
type SyncQueueRepository interface {
	LoadSyncQueue() ([]*models.SyncQueue, error)
	SaveSyncQueue(items []*models.SyncQueue) error
}

// ConflictLogRepository defines operations for conflict log persistence.
type ConflictLogRepository interface {
	CreateConflictLog(log *models.ConflictLog) error
	ListConflictLogs(limit int) ([]*models.ConflictLog, error)
}

// EntityStore is the full store contract consumed by the sync subsystem and
// the local API.
type EntityStore interface {
	SaleRepository
	MaterialRepository
	SnapshotStore
	ChangeSource

	GetSettings() (models.Settings, error)
	SaveSettings(settings models.Settings) error
	GetGoals() (map[string]models.Goal, error)
	GetGoal(yearMonth string) (*models.Goal, error)
	SaveGoal(goal models.Goal) error
	DeleteGoal(yearMonth string) error
	GetRecords() (models.Records, error)
	SaveRecords(records models.Records) error
	GetFavoriteMaterials() ([]string, error)
	SaveFavoriteMaterials(ids []string) error
	ToggleFavoriteMaterial(id string) (bool, error)
	GetCustomShipping() (models.CustomShipping, error)
	SaveCustomShipping(shipping models.CustomShipping) error
	GetCustomPlatforms() ([]models.CustomPlatform, error)
	SaveCustomPlatform(platform *models.CustomPlatform) error
	DeleteCustomPlatform(id string) error
	ClearAllData() error
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ SaleRepository        = (*Repository)(nil)
	_ MaterialRepository    = (*Repository)(nil)
	_ SnapshotStore         = (*Repository)(nil)
	_ ChangeSource          = (*Repository)(nil)
	_ MetaRepository        = (*Repository)(nil)
	_ SyncQueueRepository   = (*Repository)(nil)
	_ ConflictLogRepository = (*Repository)(nil)
	_ EntityStore           = (*Repository)(nil)
)
