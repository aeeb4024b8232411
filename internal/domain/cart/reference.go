package cart

import "time"

// Variations is the selected option per variation axis, e.g. {"Color": "Red"}
type Variations map[string]string

// Equal compares by content; nil and empty are the same selection
func (v Variations) Equal(other Variations) bool {
	if len(v) != len(other) {
		return false
	}
	for k, val := range v {
		if ov, ok := other[k]; !ok || ov != val {
			return false
		}
	}
	return true
}

func (v Variations) clone() Variations {
	if len(v) == 0 {
		return nil
	}
	out := make(Variations, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Reference is one cart line as stored remotely. (ItemID, SelectedVariations)
// identifies the line; Quantity is always at least 1.
type Reference struct {
	ItemID             string     `json:"itemId"`
	Quantity           int        `json:"quantity"`
	SelectedVariations Variations `json:"selectedVariations,omitempty"`
}

func (r Reference) matches(itemID string, v Variations) bool {
	return r.ItemID == itemID && r.SelectedVariations.Equal(v)
}

// Document is the shape of the per-user cart document
type Document struct {
	Items       []Reference `json:"items"`
	LastUpdated time.Time   `json:"lastUpdated"`
	// WriteID identifies the save that produced this snapshot
	WriteID string `json:"writeId,omitempty"`
}

func DocumentPath(userID string) string {
	return "users/" + userID + "/cart/items"
}

func cloneReferences(refs []Reference) []Reference {
	out := make([]Reference, len(refs))
	for i, r := range refs {
		out[i] = Reference{ItemID: r.ItemID, Quantity: r.Quantity, SelectedVariations: r.SelectedVariations.clone()}
	}
	return out
}

func indexOf(refs []Reference, itemID string, v Variations) int {
	for i, r := range refs {
		if r.matches(itemID, v) {
			return i
		}
	}
	return -1
}

// addReference bumps the quantity of a matching line or appends a new one
func addReference(refs []Reference, itemID string, v Variations) []Reference {
	out := cloneReferences(refs)
	if i := indexOf(out, itemID, v); i >= 0 {
		out[i].Quantity++
		return out
	}
	return append(out, Reference{ItemID: itemID, Quantity: 1, SelectedVariations: v.clone()})
}

func removeReference(refs []Reference, itemID string, v Variations) []Reference {
	out := make([]Reference, 0, len(refs))
	for _, r := range cloneReferences(refs) {
		if !r.matches(itemID, v) {
			out = append(out, r)
		}
	}
	return out
}

// setReferenceQuantity assumes the line exists; quantity <= 0 removes it
func setReferenceQuantity(refs []Reference, itemID string, quantity int, v Variations) []Reference {
	if quantity <= 0 {
		return removeReference(refs, itemID, v)
	}
	out := cloneReferences(refs)
	if i := indexOf(out, itemID, v); i >= 0 {
		out[i].Quantity = quantity
	}
	return out
}

// normalize repairs lists written by other clients: lines without an item or
// with quantity < 1 are dropped and duplicate lines are folded together.
func normalize(refs []Reference) []Reference {
	out := make([]Reference, 0, len(refs))
	for _, r := range refs {
		if r.ItemID == "" || r.Quantity < 1 {
			continue
		}
		if i := indexOf(out, r.ItemID, r.SelectedVariations); i >= 0 {
			out[i].Quantity += r.Quantity
			continue
		}
		out = append(out, Reference{ItemID: r.ItemID, Quantity: r.Quantity, SelectedVariations: r.SelectedVariations.clone()})
	}
	return out
}
