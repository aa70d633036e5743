package cart

import (
	"math/rand"
	"testing"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string, price int64, ceiling int) model.CartItem {
	return model.CartItem{
		ProductID:    id,
		Title:        "Product " + id,
		UnitPrice:    decimal.NewFromInt(price),
		StockCeiling: ceiling,
	}
}

func TestReduce_Add(t *testing.T) {
	tests := []struct {
		name          string
		start         []model.CartItem
		action        Add
		expectedQty   map[string]int
		expectedTotal string
		expectedCount int
	}{
		{
			name:          "Append new line",
			action:        Add{Item: item("P1", 250, 5), Quantity: 2},
			expectedQty:   map[string]int{"P1": 2},
			expectedTotal: "500",
			expectedCount: 2,
		},
		{
			name:          "Merge into existing line",
			start:         []model.CartItem{{ProductID: "P1", UnitPrice: decimal.NewFromInt(10), Quantity: 1, StockCeiling: 5}},
			action:        Add{Item: item("P1", 10, 5), Quantity: 3},
			expectedQty:   map[string]int{"P1": 4},
			expectedTotal: "40",
			expectedCount: 4,
		},
		{
			name:          "Merge capped at stock ceiling",
			start:         []model.CartItem{{ProductID: "P1", UnitPrice: decimal.NewFromInt(10), Quantity: 4, StockCeiling: 5}},
			action:        Add{Item: item("P1", 10, 5), Quantity: 3},
			expectedQty:   map[string]int{"P1": 5},
			expectedTotal: "50",
			expectedCount: 5,
		},
		{
			name:          "New line capped at stock ceiling",
			action:        Add{Item: item("P1", 10, 2), Quantity: 9},
			expectedQty:   map[string]int{"P1": 2},
			expectedTotal: "20",
			expectedCount: 2,
		},
		{
			name:          "Out of stock item is not added",
			action:        Add{Item: item("P1", 10, 0), Quantity: 1},
			expectedQty:   map[string]int{},
			expectedTotal: "0",
			expectedCount: 0,
		},
		{
			name:          "Non-positive quantity is ignored",
			action:        Add{Item: item("P1", 10, 5), Quantity: 0},
			expectedQty:   map[string]int{},
			expectedTotal: "0",
			expectedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Reduce(New(tt.start), tt.action)

			got := map[string]int{}
			for _, line := range c.Items {
				got[line.ProductID] = line.Quantity
			}
			assert.Equal(t, tt.expectedQty, got)
			assert.Equal(t, tt.expectedTotal, c.Total.String())
			assert.Equal(t, tt.expectedCount, c.ItemCount)
		})
	}
}

func TestReduce_PreservesInsertionOrder(t *testing.T) {
	c := New(nil)
	c = Reduce(c, Add{Item: item("B", 1, 10), Quantity: 1})
	c = Reduce(c, Add{Item: item("A", 1, 10), Quantity: 1})
	c = Reduce(c, Add{Item: item("B", 1, 10), Quantity: 1})

	require.Len(t, c.Items, 2)
	assert.Equal(t, "B", c.Items[0].ProductID)
	assert.Equal(t, "A", c.Items[1].ProductID)
}

func TestReduce_SetQuantity(t *testing.T) {
	start := []model.CartItem{
		{ProductID: "P1", UnitPrice: decimal.NewFromInt(100), Quantity: 2, StockCeiling: 3},
		{ProductID: "P2", UnitPrice: decimal.NewFromInt(50), Quantity: 1, StockCeiling: 10},
	}

	tests := []struct {
		name        string
		productID   string
		qty         int
		expectedP1  int
		expectLines int
	}{
		{name: "Set within range", productID: "P1", qty: 1, expectedP1: 1, expectLines: 2},
		{name: "Clamp above ceiling", productID: "P1", qty: 99, expectedP1: 3, expectLines: 2},
		{name: "Zero removes line", productID: "P1", qty: 0, expectedP1: 0, expectLines: 1},
		{name: "Negative removes line", productID: "P1", qty: -4, expectedP1: 0, expectLines: 1},
		{name: "Unknown product is a no-op", productID: "P9", qty: 5, expectedP1: 2, expectLines: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Reduce(New(start), SetQuantity{ProductID: tt.productID, Quantity: tt.qty})

			assert.Len(t, c.Items, tt.expectLines)
			qty := 0
			for _, line := range c.Items {
				if line.ProductID == "P1" {
					qty = line.Quantity
				}
			}
			assert.Equal(t, tt.expectedP1, qty)
		})
	}
}

func TestReduce_RemoveAndClear(t *testing.T) {
	c := New([]model.CartItem{
		{ProductID: "P1", UnitPrice: decimal.NewFromInt(5), Quantity: 1, StockCeiling: 3},
		{ProductID: "P2", UnitPrice: decimal.NewFromInt(7), Quantity: 2, StockCeiling: 3},
	})

	removed := Reduce(c, Remove{ProductID: "P1"})
	require.Len(t, removed.Items, 1)
	assert.Equal(t, "14", removed.Total.String())
	assert.Equal(t, 2, removed.ItemCount)

	cleared := Reduce(removed, Clear{})
	assert.True(t, cleared.IsEmpty())
	assert.True(t, cleared.Total.IsZero())
	assert.Equal(t, 0, cleared.ItemCount)

	// Input carts are left untouched.
	assert.Len(t, c.Items, 2)
}

func TestReduce_LoadNormalisesItems(t *testing.T) {
	c := Reduce(New(nil), Load{Items: []model.CartItem{
		{ProductID: "P1", UnitPrice: decimal.NewFromInt(10), Quantity: 8, StockCeiling: 5},
		{ProductID: "P2", UnitPrice: decimal.NewFromInt(10), Quantity: 0, StockCeiling: 5},
		{ProductID: "P1", UnitPrice: decimal.NewFromInt(10), Quantity: 1, StockCeiling: 5},
	}})

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, "50", c.Total.String())
}

func TestReduce_TotalAlwaysMatchesLines(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	catalogue := []model.CartItem{
		item("P1", 250, 3),
		item("P2", 99, 10),
		item("P3", 5, 1),
		{ProductID: "P4", Title: "Fractional", UnitPrice: decimal.RequireFromString("12.35"), StockCeiling: 7},
	}

	c := New(nil)
	for step := 0; step < 500; step++ {
		p := catalogue[rng.Intn(len(catalogue))]
		switch rng.Intn(5) {
		case 0, 1:
			c = Reduce(c, Add{Item: p, Quantity: rng.Intn(4) + 1})
		case 2:
			c = Reduce(c, Remove{ProductID: p.ProductID})
		case 3:
			c = Reduce(c, SetQuantity{ProductID: p.ProductID, Quantity: rng.Intn(15) - 3})
		case 4:
			if rng.Intn(10) == 0 {
				c = Reduce(c, Clear{})
			}
		}

		expected := decimal.Zero
		count := 0
		for _, line := range c.Items {
			require.LessOrEqual(t, line.Quantity, line.StockCeiling)
			require.Greater(t, line.Quantity, 0)
			expected = expected.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			count += line.Quantity
		}
		require.True(t, expected.Equal(c.Total), "step %d: total %s != %s", step, c.Total, expected)
		require.Equal(t, count, c.ItemCount)
	}
}
