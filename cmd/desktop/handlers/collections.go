package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/resaletally/internal/db"
	"github.com/kimhsiao/resaletally/internal/models"
)

// CollectionHandler serves the document collections: materials, favorites,
// settings, goals, records, custom platforms and shipping presets.
type CollectionHandler struct {
	repo *db.Repository
}

// NewCollectionHandler creates a new CollectionHandler.
func NewCollectionHandler(repo *db.Repository) *CollectionHandler {
	return &CollectionHandler{repo: repo}
}

// Routes mounts the collection endpoints.
func (h *CollectionHandler) Routes(r chi.Router) {
	r.Route("/materials", func(r chi.Router) {
		r.Get("/", h.ListMaterials)
		r.Post("/", h.SaveMaterial)
		r.Get("/{id}", h.GetMaterial)
		r.Delete("/{id}", h.DeleteMaterial)
		r.Post("/{id}/favorite", h.ToggleFavorite)
	})
	r.Get("/favorites", h.ListFavorites)

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.SaveSettings)

	r.Get("/goals", h.ListGoals)
	r.Put("/goals/{yearMonth}", h.SaveGoal)
	r.Delete("/goals/{yearMonth}", h.DeleteGoal)

	r.Get("/records", h.GetRecords)

	r.Get("/platforms", h.ListPlatforms)
	r.Post("/platforms", h.SavePlatform)
	r.Delete("/platforms/{id}", h.DeletePlatform)

	r.Get("/shipping", h.GetShipping)
	r.Put("/shipping", h.SaveShipping)

	r.Delete("/data", h.ClearAll)
}

// =====================================================
// Materials
// =====================================================

// ListMaterials handles GET /materials
func (h *CollectionHandler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.repo.GetMaterials()
	if err != nil {
		writeError(w, err)
		return
	}
	if materials == nil {
		materials = []models.Material{}
	}
	writeJSON(w, http.StatusOK, materials)
}

// GetMaterial handles GET /materials/{id}
func (h *CollectionHandler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	material, err := h.repo.GetMaterial(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

// SaveMaterial handles POST /materials. A body with a known id replaces it.
func (h *CollectionHandler) SaveMaterial(w http.ResponseWriter, r *http.Request) {
	var material models.Material
	if !decodeBody(w, r, &material) {
		return
	}
	if material.Name == "" {
		badRequest(w, "name is required")
		return
	}
	if err := h.repo.SaveMaterial(&material); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

// DeleteMaterial handles DELETE /materials/{id}
func (h *CollectionHandler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteMaterial(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFavorite handles POST /materials/{id}/favorite
func (h *CollectionHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	favorite, err := h.repo.ToggleFavoriteMaterial(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "favorite": favorite})
}

// ListFavorites handles GET /favorites
func (h *CollectionHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ids, err := h.repo.GetFavoriteMaterials()
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// =====================================================
// Settings, Goals and Records
// =====================================================

// GetSettings handles GET /settings
func (h *CollectionHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SaveSettings handles PUT /settings
func (h *CollectionHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if !decodeBody(w, r, &settings) {
		return
	}
	if err := h.repo.SaveSettings(settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ListGoals handles GET /goals
func (h *CollectionHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.repo.GetGoals()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

// SaveGoal handles PUT /goals/{yearMonth}
func (h *CollectionHandler) SaveGoal(w http.ResponseWriter, r *http.Request) {
	var goal models.Goal
	if !decodeBody(w, r, &goal) {
		return
	}
	goal.YearMonth = chi.URLParam(r, "yearMonth")
	if err := h.repo.SaveGoal(goal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// DeleteGoal handles DELETE /goals/{yearMonth}
func (h *CollectionHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteGoal(chi.URLParam(r, "yearMonth")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRecords handles GET /records
func (h *CollectionHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.GetRecords()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// =====================================================
// Platforms and Shipping
// =====================================================

// ListPlatforms handles GET /platforms
func (h *CollectionHandler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.repo.GetCustomPlatforms()
	if err != nil {
		writeError(w, err)
		return
	}
	if platforms == nil {
		platforms = []models.CustomPlatform{}
	}
	writeJSON(w, http.StatusOK, platforms)
}

// SavePlatform handles POST /platforms
func (h *CollectionHandler) SavePlatform(w http.ResponseWriter, r *http.Request) {
	var platform models.CustomPlatform
	if !decodeBody(w, r, &platform) {
		return
	}
	if platform.Name == "" {
		badRequest(w, "name is required")
		return
	}
	if err := h.repo.SaveCustomPlatform(&platform); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, platform)
}

// DeletePlatform handles DELETE /platforms/{id}
func (h *CollectionHandler) DeletePlatform(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteCustomPlatform(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetShipping handles GET /shipping
func (h *CollectionHandler) GetShipping(w http.ResponseWriter, r *http.Request) {
	shipping, err := h.repo.GetCustomShipping()
	if err != nil {
		writeError(w, err)
		return
	}
	if shipping == nil {
		shipping = models.CustomShipping{}
	}
	writeJSON(w, http.StatusOK, shipping)
}

// SaveShipping handles PUT /shipping
func (h *CollectionHandler) SaveShipping(w http.ResponseWriter, r *http.Request) {
	var shipping models.CustomShipping
	if !decodeBody(w, r, &shipping) {
		return
	}
	if err := h.repo.SaveCustomShipping(shipping); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipping)
}

// ClearAll handles DELETE /data and removes every collection.
func (h *CollectionHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearAllData(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
