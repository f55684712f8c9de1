// Package models provides data model definitions for ResaleTally.
package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers so snapshots stay readable by the web client.
	decimal.MarshalJSONWithoutQuotes = true
}

// Sale is one completed marketplace sale.
type Sale struct {
	ID             string          `json:"id"`
	Date           time.Time       `json:"date"`
	ProductName    string          `json:"productName"`
	Platform       string          `json:"platform"`
	SellingPrice   decimal.Decimal `json:"sellingPrice"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
	Commission     decimal.Decimal `json:"commission"`
	ShippingFee    decimal.Decimal `json:"shippingFee"`
	MaterialCost   decimal.Decimal `json:"materialCost"`
	Materials      []SaleMaterial  `json:"materials,omitempty"`
	IndirectCosts  decimal.Decimal `json:"indirectCosts"`
	NetIncome      decimal.Decimal `json:"netIncome"`
	ProfitRate     decimal.Decimal `json:"profitRate"`
}

// SaleMaterial is a material consumed by a sale.
type SaleMaterial struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Timestamp returns the sale date in Unix milliseconds.
func (s *Sale) Timestamp() int64 {
	return s.Date.UnixMilli()
}

// YearMonth returns the "YYYY-MM" key the sale belongs to.
func (s *Sale) YearMonth() string {
	return s.Date.Format("2006-01")
}

// SortSales orders sales newest first. Equal dates fall back to id order.
func SortSales(sales []Sale) {
	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].Date.Equal(sales[j].Date) {
			return sales[i].Date.After(sales[j].Date)
		}
		return sales[i].ID < sales[j].ID
	})
}
