package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalogue product and its current seller of record.
type Product struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Category  string          `json:"category" db:"category"`
	SellerID  string          `json:"sellerId" db:"seller_id"`
	Stock     int             `json:"stock" db:"stock"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// InStock reports whether at least one unit can be sold.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// ProductFilter narrows a catalogue listing. Zero values mean no filter.
type ProductFilter struct {
	Category    string
	InStockOnly bool
	Limit       int
	Offset      int
}
