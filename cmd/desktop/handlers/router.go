package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/resaletally/internal/app"
)

// Mount registers every API route on r.
func Mount(r chi.Router, a *app.App) {
	r.Route("/sales", NewSalesHandler(a.Repo).Routes)
	r.Route("/sync", NewSyncHandler(a).Routes)
	r.Group(NewCollectionHandler(a.Repo).Routes)
}
