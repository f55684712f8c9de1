package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goal is a monthly sales target keyed by year-month.
type Goal struct {
	YearMonth     string          `json:"yearMonth"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	SalesCount    int             `json:"salesCount"`
	Achieved      bool            `json:"achieved"`
	AchievedDate  *time.Time      `json:"achievedDate"`
}

// AchievementRate returns current/target as a percentage, zero without a target.
func (g *Goal) AchievementRate() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	return g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100))
}
