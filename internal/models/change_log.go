package models

import "time"

// Collection names a persisted entity collection.
type Collection string

const (
	CollectionSales             Collection = "sales"
	CollectionMaterials         Collection = "materials"
	CollectionSettings          Collection = "settings"
	CollectionGoals             Collection = "goals"
	CollectionRecords           Collection = "records"
	CollectionFavoriteMaterials Collection = "favoriteMaterials"
	CollectionCustomShipping    Collection = "customShipping"
	CollectionCustomPlatforms   Collection = "customPlatforms"
)

// Collections lists every collection in export order.
var Collections = []Collection{
	CollectionSales,
	CollectionMaterials,
	CollectionSettings,
	CollectionGoals,
	CollectionRecords,
	CollectionFavoriteMaterials,
	CollectionCustomShipping,
	CollectionCustomPlatforms,
}

// Operation kinds carried by a ChangeEvent.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
	OperationClear  = "clear"
)

// ChangeEvent is emitted by the entity store after a successful mutation.
type ChangeEvent struct {
	Collection Collection `json:"collection"`
	Operation  string     `json:"operation"`
	ItemID     string     `json:"item_id,omitempty"`
	Timestamp  int64      `json:"timestamp"` // Unix milliseconds
}

// Time returns the Timestamp as time.Time.
func (c *ChangeEvent) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// ChangeListener receives change events.
type ChangeListener func(event ChangeEvent)
