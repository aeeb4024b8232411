package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// CollectionPath is the document collection holding catalog items
const CollectionPath = "items/"

var (
	ErrItemNotFound = errors.New("item not found")
	ErrInvalidName  = errors.New("item name is required")
	ErrInvalidPrice = errors.New("price must not be negative")
)

// ProductVariation prices one concrete combination of variation options,
// e.g. {"Color": "Black", "Storage": "256GB"}.
type ProductVariation struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Price        *decimal.Decimal  `json:"price,omitempty"`
	Combinations map[string]string `json:"combinations"`
}

type Item struct {
	ID                string              `json:"id"`
	Name              string              `json:"itemName"`
	Price             decimal.Decimal     `json:"price"`
	Thumbnail         string              `json:"thumbnail"`
	Category          string              `json:"category"`
	Description       string              `json:"description,omitempty"`
	Stock             int                 `json:"stock"`
	Variations        map[string][]string `json:"variations,omitempty"`
	ProductVariations []ProductVariation  `json:"productVariations,omitempty"`
}

func ItemPath(id string) string {
	return CollectionPath + id
}

// VariationPrice returns the price of the product variation whose combination
// is exactly the selected options, or nil when none matches or it has no price.
func (i *Item) VariationPrice(selected map[string]string) *decimal.Decimal {
	if len(selected) == 0 {
		return nil
	}
	for _, pv := range i.ProductVariations {
		if pv.Price == nil || len(pv.Combinations) != len(selected) {
			continue
		}
		match := true
		for k, v := range selected {
			if pv.Combinations[k] != v {
				match = false
				break
			}
		}
		if match {
			p := *pv.Price
			return &p
		}
	}
	return nil
}

func (i *Item) validate() error {
	if i.Name == "" {
		return ErrInvalidName
	}
	if i.Price.IsNegative() {
		return ErrInvalidPrice
	}
	for _, pv := range i.ProductVariations {
		if pv.Price != nil && pv.Price.IsNegative() {
			return ErrInvalidPrice
		}
	}
	return nil
}
