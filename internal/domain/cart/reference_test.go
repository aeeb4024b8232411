package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariations_Equal(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Variations
		equal bool
	}{
		{"both nil", nil, nil, true},
		{"nil and empty", nil, Variations{}, true},
		{"same content", Variations{"Color": "Red", "Size": "M"}, Variations{"Size": "M", "Color": "Red"}, true},
		{"different value", Variations{"Color": "Red"}, Variations{"Color": "Blue"}, false},
		{"different key", Variations{"Color": "Red"}, Variations{"Colour": "Red"}, false},
		{"subset", Variations{"Color": "Red"}, Variations{"Color": "Red", "Size": "M"}, false},
		{"nil and non-empty", nil, Variations{"Color": "Red"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
			assert.Equal(t, tt.equal, tt.b.Equal(tt.a))
		})
	}
}

func TestAddReference_SameKeyIncrements(t *testing.T) {
	refs := addReference(nil, "A", Variations{"Color": "Red"})
	refs = addReference(refs, "A", Variations{"Color": "Red"})

	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 2, SelectedVariations: Variations{"Color": "Red"}}}, refs)
}

func TestAddReference_DifferentVariationsAreDistinct(t *testing.T) {
	refs := addReference(nil, "A", Variations{"Color": "Red"})
	refs = addReference(refs, "A", Variations{"Color": "Blue"})
	refs = addReference(refs, "A", nil)

	assert.Len(t, refs, 3)
	for _, r := range refs {
		assert.Equal(t, 1, r.Quantity)
	}
}

func TestAddReference_DoesNotMutateInput(t *testing.T) {
	original := []Reference{{ItemID: "A", Quantity: 1}}

	_ = addReference(original, "A", nil)

	assert.Equal(t, 1, original[0].Quantity)
}

func TestAddReference_CopiesVariations(t *testing.T) {
	v := Variations{"Color": "Red"}
	refs := addReference(nil, "A", v)

	v["Color"] = "Green"

	assert.Equal(t, "Red", refs[0].SelectedVariations["Color"])
}

func TestRemoveReference(t *testing.T) {
	refs := []Reference{
		{ItemID: "A", Quantity: 1, SelectedVariations: Variations{"Color": "Red"}},
		{ItemID: "A", Quantity: 3, SelectedVariations: Variations{"Color": "Blue"}},
		{ItemID: "B", Quantity: 2},
	}

	got := removeReference(refs, "A", Variations{"Color": "Blue"})

	assert.Equal(t, []Reference{
		{ItemID: "A", Quantity: 1, SelectedVariations: Variations{"Color": "Red"}},
		{ItemID: "B", Quantity: 2},
	}, got)
	assert.Len(t, refs, 3)
}

func TestSetReferenceQuantity(t *testing.T) {
	refs := []Reference{{ItemID: "A", Quantity: 1}, {ItemID: "B", Quantity: 2}}

	tests := []struct {
		name     string
		quantity int
		want     []Reference
	}{
		{"replace", 5, []Reference{{ItemID: "A", Quantity: 5}, {ItemID: "B", Quantity: 2}}},
		{"zero removes", 0, []Reference{{ItemID: "B", Quantity: 2}}},
		{"negative removes", -3, []Reference{{ItemID: "B", Quantity: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, setReferenceQuantity(refs, "A", tt.quantity, nil))
		})
	}
}

func TestNormalize(t *testing.T) {
	refs := []Reference{
		{ItemID: "A", Quantity: 1},
		{ItemID: "", Quantity: 4},
		{ItemID: "B", Quantity: 0},
		{ItemID: "A", Quantity: 2, SelectedVariations: Variations{}},
		{ItemID: "C", Quantity: -1},
		{ItemID: "D", Quantity: 1, SelectedVariations: Variations{"Size": "L"}},
	}

	got := normalize(refs)

	assert.Equal(t, []Reference{
		{ItemID: "A", Quantity: 3},
		{ItemID: "D", Quantity: 1, SelectedVariations: Variations{"Size": "L"}},
	}, got)
}

func TestDocumentPath(t *testing.T) {
	assert.Equal(t, "users/user-123/cart/items", DocumentPath("user-123"))
}
