package db

import (
	"strings"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
	"github.com/kimhsiao/resaletally/internal/uuid"
)

// =====================================================
// Material Operations
// =====================================================

// GetMaterials returns all materials in insertion order.
func (r *Repository) GetMaterials() ([]models.Material, error) {
	materials := make([]models.Material, 0)
	if _, err := r.loadDocument(models.CollectionMaterials, &materials); err != nil {
		return nil, err
	}
	if materials == nil {
		materials = make([]models.Material, 0)
	}
	return materials, nil
}

// GetMaterial retrieves a material by ID.
func (r *Repository) GetMaterial(id string) (*models.Material, error) {
	materials, err := r.GetMaterials()
	if err != nil {
		return nil, err
	}
	for i := range materials {
		if materials[i].ID == id {
			return &materials[i], nil
		}
	}
	return nil, notFound("material", id)
}

// SaveMaterial appends a material, or replaces the one with the same id.
func (r *Repository) SaveMaterial(material *models.Material) error {
	if material.ID == "" {
		material.ID = uuid.New()
	}

	r.writeMu.Lock()
	materials, err := r.GetMaterials()
	if err == nil {
		replaced := false
		for i := range materials {
			if materials[i].ID == material.ID {
				materials[i] = *material
				replaced = true
				break
			}
		}
		if !replaced {
			materials = append(materials, *material)
		}
		err = r.storeDocument(r.db, models.CollectionMaterials, materials)
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.emit(models.CollectionMaterials, models.OperationCreate, material.ID)
	return nil
}

// UpdateMaterial applies patch to the stored material. The id cannot change.
func (r *Repository) UpdateMaterial(id string, patch func(*models.Material) error) (*models.Material, error) {
	r.writeMu.Lock()
	materials, err := r.GetMaterials()
	if err != nil {
		r.writeMu.Unlock()
		return nil, err
	}

	idx := -1
	for i := range materials {
		if materials[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.writeMu.Unlock()
		return nil, notFound("material", id)
	}

	updated := materials[idx]
	if err := patch(&updated); err != nil {
		r.writeMu.Unlock()
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "patch material", err)
	}
	updated.ID = id
	materials[idx] = updated
	err = r.storeDocument(r.db, models.CollectionMaterials, materials)
	r.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	r.emit(models.CollectionMaterials, models.OperationUpdate, id)
	return &updated, nil
}

// DeleteMaterial removes a material. Deleting a missing id is not an error.
func (r *Repository) DeleteMaterial(id string) error {
	r.writeMu.Lock()
	materials, err := r.GetMaterials()
	if err == nil {
		kept := materials[:0]
		for _, m := range materials {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		err = r.storeDocument(r.db, models.CollectionMaterials, kept)
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.emit(models.CollectionMaterials, models.OperationDelete, id)
	return nil
}

// =====================================================
// Settings Operations
// =====================================================

// GetSettings returns the stored settings, or the defaults.
func (r *Repository) GetSettings() (models.Settings, error) {
	settings := models.DefaultSettings()
	if _, err := r.loadDocument(models.CollectionSettings, &settings); err != nil {
		return models.Settings{}, err
	}
	return settings, nil
}

// SaveSettings replaces the settings.
func (r *Repository) SaveSettings(settings models.Settings) error {
	if err := r.storeDocument(r.db, models.CollectionSettings, settings); err != nil {
		return err
	}
	r.emit(models.CollectionSettings, models.OperationUpdate, "")
	return nil
}

// =====================================================
// Goal Operations
// =====================================================

// GetGoals returns all goals keyed by year-month.
func (r *Repository) GetGoals() (map[string]models.Goal, error) {
	goals := make(map[string]models.Goal)
	if _, err := r.loadDocument(models.CollectionGoals, &goals); err != nil {
		return nil, err
	}
	if goals == nil {
		goals = make(map[string]models.Goal)
	}
	return goals, nil
}

// GetGoal returns the goal for yearMonth.
func (r *Repository) GetGoal(yearMonth string) (*models.Goal, error) {
	goals, err := r.GetGoals()
	if err != nil {
		return nil, err
	}
	goal, ok := goals[yearMonth]
	if !ok {
		return nil, notFound("goal", yearMonth)
	}
	return &goal, nil
}

// SaveGoal stores goal under its year-month key.
func (r *Repository) SaveGoal(goal models.Goal) error {
	if strings.TrimSpace(goal.YearMonth) == "" {
		return apperrors.New(apperrors.ErrValidation, "goal year-month is required")
	}

	r.writeMu.Lock()
	goals, err := r.GetGoals()
	if err == nil {
		goals[goal.YearMonth] = goal
		err = r.storeDocument(r.db, models.CollectionGoals, goals)
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.emit(models.CollectionGoals, models.OperationUpdate, goal.YearMonth)
	return nil
}

// DeleteGoal removes the goal for yearMonth.
func (r *Repository) DeleteGoal(yearMonth string) error {
	r.writeMu.Lock()
	goals, err := r.GetGoals()
	if err == nil {
		delete(goals, yearMonth)
		err = r.storeDocument(r.db, models.CollectionGoals, goals)
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.emit(models.CollectionGoals, models.OperationDelete, yearMonth)
	return nil
}

// =====================================================
// Record Operations
// =====================================================

// GetRecords returns the stored records, or empty records.
func (r *Repository) GetRecords() (models.Records, error) {
	records := models.DefaultRecords()
	if _, err := r.loadDocument(models.CollectionRecords, &records); err != nil {
		return models.Records{}, err
	}
	return records, nil
}

// SaveRecords replaces the records.
func (r *Repository) SaveRecords(records models.Records) error {
	if err := r.storeDocument(r.db, models.CollectionRecords, records); err != nil {
		return err
	}
	r.emit(models.CollectionRecords, models.OperationUpdate, "")
	return nil
}

// =====================================================
// Favorite Material Operations
// =====================================================

// GetFavoriteMaterials returns the favorite material ids.
func (r *Repository) GetFavoriteMaterials() ([]string, error) {
	ids := make([]string, 0)
	if _, err := r.loadDocument(models.CollectionFavoriteMaterials, &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = make([]string, 0)
	}
	return ids, nil
}

// SaveFavoriteMaterials replaces the favorite material ids.
func (r *Repository) SaveFavoriteMaterials(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	if err := r.storeDocument(r.db, models.CollectionFavoriteMaterials, ids); err != nil {
		return err
	}
	r.emit(models.CollectionFavoriteMaterials, models.OperationUpdate, "")
	return nil
}

// ToggleFavoriteMaterial adds or removes id and reports whether it is now a favorite.
func (r *Repository) ToggleFavoriteMaterial(id string) (bool, error) {
	r.writeMu.Lock()
	ids, err := r.GetFavoriteMaterials()
	if err != nil {
		r.writeMu.Unlock()
		return false, err
	}

	favorite := true
	kept := make([]string, 0, len(ids)+1)
	for _, existing := range ids {
		if existing == id {
			favorite = false
			continue
		}
		kept = append(kept, existing)
	}
	if favorite {
		kept = append(kept, id)
	}
	err = r.storeDocument(r.db, models.CollectionFavoriteMaterials, kept)
	r.writeMu.Unlock()
	if err != nil {
		return false, err
	}

	r.emit(models.CollectionFavoriteMaterials, models.OperationUpdate, id)
	return favorite, nil
}

// =====================================================
// Shipping Preset Operations
// =====================================================

// GetCustomShipping returns the custom shipping presets.
func (r *Repository) GetCustomShipping() (models.CustomShipping, error) {
	shipping := models.CustomShipping{}
	if _, err := r.loadDocument(models.CollectionCustomShipping, &shipping); err != nil {
		return nil, err
	}
	if shipping == nil {
		shipping = models.CustomShipping{}
	}
	return shipping, nil
}

// SaveCustomShipping replaces the custom shipping presets.
func (r *Repository) SaveCustomShipping(shipping models.CustomShipping) error {
	if shipping == nil {
		shipping = models.CustomShipping{}
	}
	if err := r.storeDocument(r.db, models.CollectionCustomShipping, shipping); err != nil {
		return err
	}
	r.emit(models.CollectionCustomShipping, models.OperationUpdate, "")
	return nil
}

// =====================================================
// Custom Platform Operations
// =====================================================

// GetCustomPlatforms returns the user-defined platforms.
func (r *Repository) GetCustomPlatforms() ([]models.CustomPlatform, error) {
	platforms := make([]models.CustomPlatform, 0)
	if _, err := r.loadDocument(models.CollectionCustomPlatforms, &platforms); err != nil {
		return nil, err
	}
	if platforms == nil {
		platforms = make([]models.CustomPlatform, 0)
	}
	return platforms, nil
}

// SaveCustomPlatform appends a platform, or replaces the one with the same id.
func (r *Repository) SaveCustomPlatform(platform *models.CustomPlatform) error {
	if platform.ID == "" {
		platform.ID = "custom_" + uuid.New()
	}

	r.writeMu.Lock()
	platforms, err := r.GetCustomPlatforms()
	if err == nil {
		replaced := false
		for i := range platforms {
			if platforms[i].ID == platform.ID {
				platforms[i] = *platform
				replaced = true
				break
			}
		}
		if !replaced {
			platforms = append(platforms, *platform)
		}
		err = r.storeDocument(r.db, models.CollectionCustomPlatforms, platforms)
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.emit(models.CollectionCustomPlatforms, models.OperationCreate, platform.ID)
	return nil
}

// DeleteCustomPlatform removes a platform. Deleting a missing id is not an error.
func (r *Repository) DeleteCustomPlatform(id string) error {
	r.writeMu.Lock()
	platforms, err := r.GetCustomPlatforms()
	if err == nil {
		kept := platforms[:0]
		for _, p := range platforms {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		err = r.storeDocument(r.db, models.CollectionCustomPlatforms, kept)
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.emit(models.CollectionCustomPlatforms, models.OperationDelete, id)
	return nil
}
