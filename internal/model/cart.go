package model

import "github.com/shopspring/decimal"

// CartItem is a single cart line.
type CartItem struct {
	ProductID    string          `json:"productId"`
	Title        string          `json:"title"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	StockCeiling int             `json:"stockCeiling"`
}

// LineTotal returns price × quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartView is the cart as returned to API clients.
type CartView struct {
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

// AddCartItemRequest represents the request payload for adding a product to the cart.
type AddCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// SetQuantityRequest represents the request payload for changing a line quantity.
type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}
