package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kimhsiao/resaletally/internal/db"
	"github.com/kimhsiao/resaletally/internal/models"
)

// SalesHandler serves the sales history.
type SalesHandler struct {
	repo *db.Repository
	now  func() time.Time
}

// NewSalesHandler creates a new SalesHandler.
func NewSalesHandler(repo *db.Repository) *SalesHandler {
	return &SalesHandler{repo: repo, now: time.Now}
}

// Routes mounts the sales endpoints.
func (h *SalesHandler) Routes(r chi.Router) {
	r.Get("/", h.ListSales)
	r.Post("/", h.CreateSale)
	r.Get("/{id}", h.GetSale)
	r.Put("/{id}", h.UpdateSale)
	r.Delete("/{id}", h.DeleteSale)
}

// SalesSummary totals a filtered history.
type SalesSummary struct {
	Count         int             `json:"count"`
	TotalSales    decimal.Decimal `json:"totalSales"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
	AvgProfitRate decimal.Decimal `json:"avgProfitRate"`
}

// SalesResponse is the body of GET /sales.
type SalesResponse struct {
	Sales   []models.Sale `json:"sales"`
	Summary SalesSummary  `json:"summary"`
}

// Summarize totals sales. The average profit rate is rounded to one decimal.
func Summarize(sales []models.Sale) SalesSummary {
	s := SalesSummary{Count: len(sales), TotalSales: decimal.Zero, TotalProfit: decimal.Zero, AvgProfitRate: decimal.Zero}
	if len(sales) == 0 {
		return s
	}
	rates := decimal.Zero
	for _, sale := range sales {
		s.TotalSales = s.TotalSales.Add(sale.SellingPrice)
		s.TotalProfit = s.TotalProfit.Add(sale.NetIncome)
		rates = rates.Add(sale.ProfitRate)
	}
	s.AvgProfitRate = rates.Div(decimal.NewFromInt(int64(len(sales)))).Round(1)
	return s
}

// ListSales handles GET /sales?period=&platform=&q=
func (h *SalesHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := db.ParsePeriod(q.Get("period"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	sales, err := h.repo.ListSales(db.SalesFilter{
		Period:   period,
		Platform: q.Get("platform"),
		Query:    q.Get("q"),
		Now:      h.now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if sales == nil {
		sales = []models.Sale{}
	}
	writeJSON(w, http.StatusOK, SalesResponse{Sales: sales, Summary: Summarize(sales)})
}

// GetSale handles GET /sales/{id}
func (h *SalesHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.repo.GetSale(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// CreateSale handles POST /sales
func (h *SalesHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var sale models.Sale
	if !decodeBody(w, r, &sale) {
		return
	}
	if sale.ProductName == "" {
		badRequest(w, "productName is required")
		return
	}
	if sale.Platform == "" {
		sale.Platform = "mercari"
	}
	if err := h.repo.SaveSale(&sale); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// UpdateSale handles PUT /sales/{id}. The body replaces the stored sale.
func (h *SalesHandler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	var body models.Sale
	if !decodeBody(w, r, &body) {
		return
	}
	sale, err := h.repo.UpdateSale(chi.URLParam(r, "id"), func(s *models.Sale) error {
		if body.Date.IsZero() {
			body.Date = s.Date
		}
		*s = body
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// DeleteSale handles DELETE /sales/{id}
func (h *SalesHandler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteSale(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
