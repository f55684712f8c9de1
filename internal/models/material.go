package models

import "github.com/shopspring/decimal"

// Material is a packing or production material tracked for cost and stock.
type Material struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Category         string              `json:"category,omitempty"`
	UnitPrice        decimal.Decimal     `json:"unitPrice"`
	Unit             string              `json:"unit,omitempty"`
	PurchaseQuantity decimal.NullDecimal `json:"purchaseQuantity"`
	PurchasePrice    decimal.NullDecimal `json:"purchasePrice"`
	ShippingFee      decimal.NullDecimal `json:"shippingFee"`
	Stock            *int                `json:"stock"`
}
