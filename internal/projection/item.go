package projection

import (
	"github.com/example/ec-cart-sync/internal/domain/cart"
	"github.com/shopspring/decimal"
)

// CartItem is a cart line joined with its catalog item
type CartItem struct {
	ItemID             string              `json:"id"`
	Quantity           int                 `json:"quantity"`
	SelectedVariations cart.Variations     `json:"selectedVariations,omitempty"`
	Name               string              `json:"name"`
	Price              decimal.Decimal     `json:"price"`
	VariationPrice     *decimal.Decimal    `json:"variationPrice,omitempty"`
	Thumbnail          string              `json:"thumbnail"`
	Variations         map[string][]string `json:"variations,omitempty"`
}

// UnitPrice is the variation price when one applies, else the item price
func (c CartItem) UnitPrice() decimal.Decimal {
	if c.VariationPrice != nil {
		return *c.VariationPrice
	}
	return c.Price
}

func (c CartItem) LineTotal() decimal.Decimal {
	return c.UnitPrice().Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Total sums the line totals
func Total(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Count sums the quantities
func Count(items []CartItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
