package entity

import "github.com/shopspring/decimal"

// Product is the current catalog row used to price new orders.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageRef  string          `json:"image_ref"`
}

type StockEntry struct {
	ProductID         string `json:"product_id"`
	QuantityAvailable int    `json:"quantity_available"`
}

// StockLine is one product/quantity pair of a reservation or release.
type StockLine struct {
	ProductID string
	Quantity  int
}

type NewProduct struct {
	ID           string          `json:"id" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=255"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ImageRef     string          `json:"image_ref" validate:"max=255"`
	OpeningStock int             `json:"opening_stock" validate:"gte=0"`
}
