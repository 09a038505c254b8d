package entity

import "github.com/shopspring/decimal"

// WalkInName is the placeholder name POS staff use for anonymous sales.
const WalkInName = "walk-in"

type Customer struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone"`
	Address    *string         `json:"address"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	OrderCount int             `json:"order_count"`
}
