package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func phoneItem() *Item {
	return &Item{
		ID:    "phone",
		Name:  "Phone",
		Price: decimal.NewFromInt(500),
		Variations: map[string][]string{
			"Color":   {"Black", "White"},
			"Storage": {"128GB", "256GB"},
		},
		ProductVariations: []ProductVariation{
			{ID: "v1", Name: "Black 128GB", Price: price("450"), Combinations: map[string]string{"Color": "Black", "Storage": "128GB"}},
			{ID: "v2", Name: "Black 256GB", Price: price("550.50"), Combinations: map[string]string{"Color": "Black", "Storage": "256GB"}},
			{ID: "v3", Name: "White 256GB", Combinations: map[string]string{"Color": "White", "Storage": "256GB"}},
		},
	}
}

func TestItem_VariationPrice(t *testing.T) {
	tests := []struct {
		name     string
		selected map[string]string
		want     string
	}{
		{"exact match", map[string]string{"Color": "Black", "Storage": "256GB"}, "550.5"},
		{"other exact match", map[string]string{"Storage": "128GB", "Color": "Black"}, "450"},
		{"variation without price", map[string]string{"Color": "White", "Storage": "256GB"}, ""},
		{"partial selection", map[string]string{"Color": "Black"}, ""},
		{"extra key", map[string]string{"Color": "Black", "Storage": "128GB", "Case": "Red"}, ""},
		{"no selection", nil, ""},
		{"unknown option", map[string]string{"Color": "Gold", "Storage": "128GB"}, ""},
	}

	item := phoneItem()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := item.VariationPrice(tt.selected)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestItem_VariationPriceIsACopy(t *testing.T) {
	item := phoneItem()

	got := item.VariationPrice(map[string]string{"Color": "Black", "Storage": "128GB"})
	*got = decimal.NewFromInt(1)

	assert.Equal(t, "450", item.ProductVariations[0].Price.String())
}

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name string
		item Item
		err  error
	}{
		{"valid", Item{Name: "Mug", Price: decimal.NewFromInt(10)}, nil},
		{"free item", Item{Name: "Sticker", Price: decimal.Zero}, nil},
		{"missing name", Item{Price: decimal.NewFromInt(10)}, ErrInvalidName},
		{"negative price", Item{Name: "Mug", Price: decimal.NewFromInt(-1)}, ErrInvalidPrice},
		{"negative variation price", Item{
			Name:              "Mug",
			Price:             decimal.NewFromInt(10),
			ProductVariations: []ProductVariation{{ID: "v", Price: price("-5")}},
		}, ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}
