package models

import "github.com/shopspring/decimal"

// Records holds the all-time superlatives shown on the dashboard.
type Records struct {
	MaxMonthlySales      AmountRecord `json:"maxMonthlySales"`
	MaxMonthlySalesCount CountRecord  `json:"maxMonthlySalesCount"`
	MaxAchievementRate   RateRecord   `json:"maxAchievementRate"`
}

// AmountRecord is the best monthly sales amount and the month it happened.
type AmountRecord struct {
	Amount    decimal.Decimal `json:"amount"`
	YearMonth string          `json:"yearMonth"`
}

// CountRecord is the best monthly sales count.
type CountRecord struct {
	Count     int    `json:"count"`
	YearMonth string `json:"yearMonth"`
}

// RateRecord is the best monthly goal achievement rate in percent.
type RateRecord struct {
	Rate      decimal.Decimal `json:"rate"`
	YearMonth string          `json:"yearMonth"`
}

// DefaultRecords returns empty records.
func DefaultRecords() Records {
	return Records{}
}
