package db

import (
	"fmt"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
)

// ExportSnapshot reads every collection into one snapshot. Collections that
// were never written are exported with their defaults.
func (r *Repository) ExportSnapshot() (*models.Snapshot, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snapshot := models.NewSnapshot()
	var err error

	if snapshot.Sales, err = r.GetSales(); err != nil {
		return nil, err
	}
	if snapshot.Materials, err = r.GetMaterials(); err != nil {
		return nil, err
	}
	settings, err := r.GetSettings()
	if err != nil {
		return nil, err
	}
	snapshot.Settings = &settings
	if snapshot.Goals, err = r.GetGoals(); err != nil {
		return nil, err
	}
	records, err := r.GetRecords()
	if err != nil {
		return nil, err
	}
	snapshot.Records = &records
	if snapshot.FavoriteMaterials, err = r.GetFavoriteMaterials(); err != nil {
		return nil, err
	}
	if snapshot.CustomShipping, err = r.GetCustomShipping(); err != nil {
		return nil, err
	}
	if snapshot.CustomPlatforms, err = r.GetCustomPlatforms(); err != nil {
		return nil, err
	}

	snapshot.Stamp(r.now())
	return snapshot, nil
}

// ImportSnapshot overwrites every collection present in snapshot and leaves
// absent ones untouched. Collections are written one at a time; on failure
// the ones already written stay written. Imports do not emit change events.
func (r *Repository) ImportSnapshot(snapshot *models.Snapshot) error {
	if snapshot == nil {
		return apperrors.New(apperrors.ErrImportFailed, "snapshot is nil")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if snapshot.Sales != nil {
		sales := append([]models.Sale(nil), snapshot.Sales...)
		models.SortSales(sales)
		if err := r.replaceSales(sales); err != nil {
			return importErr(models.CollectionSales, err)
		}
	}

	documents := []struct {
		name    models.Collection
		present bool
		value   interface{}
	}{
		{models.CollectionMaterials, snapshot.Materials != nil, snapshot.Materials},
		{models.CollectionSettings, snapshot.Settings != nil, snapshot.Settings},
		{models.CollectionGoals, snapshot.Goals != nil, snapshot.Goals},
		{models.CollectionRecords, snapshot.Records != nil, snapshot.Records},
		{models.CollectionFavoriteMaterials, snapshot.FavoriteMaterials != nil, snapshot.FavoriteMaterials},
		{models.CollectionCustomShipping, snapshot.CustomShipping != nil, snapshot.CustomShipping},
		{models.CollectionCustomPlatforms, snapshot.CustomPlatforms != nil, snapshot.CustomPlatforms},
	}
	for _, doc := range documents {
		if !doc.present {
			continue
		}
		if err := r.storeDocument(r.db, doc.name, doc.value); err != nil {
			return importErr(doc.name, err)
		}
	}
	return nil
}

func importErr(name models.Collection, err error) error {
	return apperrors.Wrap(apperrors.ErrImportFailed, fmt.Sprintf("import %s", name), err)
}

// ClearAllData removes every collection and announces each as cleared.
func (r *Repository) ClearAllData() error {
	r.writeMu.Lock()
	tx, err := r.db.Begin()
	if err != nil {
		r.writeMu.Unlock()
		return apperrors.Wrap(apperrors.ErrDatabase, "begin clear", err)
	}
	_, err = tx.Exec(`DELETE FROM sales`)
	if err == nil {
		_, err = tx.Exec(`DELETE FROM collections`)
	}
	if err == nil {
		err = tx.Commit()
	} else {
		tx.Rollback()
	}
	r.writeMu.Unlock()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "clear all data", err)
	}

	for _, c := range models.Collections {
		r.emit(c, models.OperationClear, "")
	}
	return nil
}
