// Package cart holds the cart reducer and the persisted per-owner cart store.
package cart

import (
	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

// Cart is an ordered list of lines plus totals derived from them.
type Cart struct {
	Items     []model.CartItem
	Total     decimal.Decimal
	ItemCount int
}

// Action is a cart mutation understood by Reduce.
type Action interface {
	apply(items []model.CartItem) []model.CartItem
}

// Add merges Quantity units of Item into the cart, capped at the stock ceiling.
type Add struct {
	Item     model.CartItem
	Quantity int
}

// Remove deletes the line for ProductID.
type Remove struct {
	ProductID string
}

// SetQuantity sets a line quantity, clamped to [0, stock ceiling]; zero removes the line.
type SetQuantity struct {
	ProductID string
	Quantity  int
}

// Clear empties the cart.
type Clear struct{}

// Load replaces the cart contents wholesale.
type Load struct {
	Items []model.CartItem
}

// New builds a cart from items, normalising them the same way Load does.
func New(items []model.CartItem) Cart {
	return Reduce(Cart{}, Load{Items: items})
}

// Reduce applies a to c and returns the resulting cart. c is not modified.
func Reduce(c Cart, a Action) Cart {
	items := make([]model.CartItem, len(c.Items))
	copy(items, c.Items)

	items = a.apply(items)
	return fold(items)
}

// fold recomputes the derived totals from scratch.
func fold(items []model.CartItem) Cart {
	total := decimal.Zero
	count := 0
	for _, item := range items {
		total = total.Add(item.LineTotal())
		count += item.Quantity
	}
	if items == nil {
		items = []model.CartItem{}
	}
	return Cart{Items: items, Total: total, ItemCount: count}
}

func (a Add) apply(items []model.CartItem) []model.CartItem {
	if a.Quantity <= 0 || a.Item.ProductID == "" {
		return items
	}

	for i := range items {
		if items[i].ProductID != a.Item.ProductID {
			continue
		}
		qty := items[i].Quantity + a.Quantity
		items[i].Title = a.Item.Title
		items[i].UnitPrice = a.Item.UnitPrice
		items[i].StockCeiling = a.Item.StockCeiling
		items[i].Quantity = clamp(qty, a.Item.StockCeiling)
		if items[i].Quantity == 0 {
			return removeAt(items, i)
		}
		return items
	}

	qty := clamp(a.Quantity, a.Item.StockCeiling)
	if qty == 0 {
		return items
	}
	line := a.Item
	line.Quantity = qty
	return append(items, line)
}

func (a Remove) apply(items []model.CartItem) []model.CartItem {
	for i := range items {
		if items[i].ProductID == a.ProductID {
			return removeAt(items, i)
		}
	}
	return items
}

func (a SetQuantity) apply(items []model.CartItem) []model.CartItem {
	for i := range items {
		if items[i].ProductID != a.ProductID {
			continue
		}
		qty := clamp(a.Quantity, items[i].StockCeiling)
		if qty == 0 {
			return removeAt(items, i)
		}
		items[i].Quantity = qty
		return items
	}
	return items
}

func (Clear) apply([]model.CartItem) []model.CartItem {
	return []model.CartItem{}
}

func (a Load) apply([]model.CartItem) []model.CartItem {
	items := []model.CartItem{}
	for _, item := range a.Items {
		items = Add{Item: item, Quantity: item.Quantity}.apply(items)
	}
	return items
}

func clamp(qty, ceiling int) int {
	if qty < 0 {
		return 0
	}
	if ceiling < 0 {
		ceiling = 0
	}
	if qty > ceiling {
		return ceiling
	}
	return qty
}

func removeAt(items []model.CartItem, i int) []model.CartItem {
	return append(items[:i], items[i+1:]...)
}

// View converts the cart to its API representation.
func (c Cart) View() model.CartView {
	items := c.Items
	if items == nil {
		items = []model.CartItem{}
	}
	return model.CartView{Items: items, Total: c.Total, ItemCount: c.ItemCount}
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
