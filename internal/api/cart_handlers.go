package api

import (
	"net/http"

	"github.com/example/ec-cart-sync/internal/domain/cart"
	"github.com/example/ec-cart-sync/internal/projection"
	"github.com/shopspring/decimal"
)

// CartItemRequest identifies a cart line by item and selected variations
type CartItemRequest struct {
	ItemID             string          `json:"itemId"`
	Quantity           int             `json:"quantity,omitempty"`
	SelectedVariations cart.Variations `json:"selectedVariations,omitempty"`
}

// CartResponse is the user's projected cart
type CartResponse struct {
	Items []projection.CartItem `json:"items"`
	Total decimal.Decimal       `json:"total"`
	Count int                   `json:"count"`
}

// GetCart attaches the caller's projection on first use and returns it
func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.projections.Attach(r.Context(), identity(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	items := view.Items()
	if items == nil {
		items = []projection.CartItem{}
	}
	respondJSON(w, http.StatusOK, CartResponse{
		Items: items,
		Total: projection.Total(items),
		Count: projection.Count(items),
	})
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.carts.Add(r.Context(), identity(r), req.ItemID, req.SelectedVariations); err != nil {
		respondDomainError(w, err)
		return
	}
	h.GetCart(w, r)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.carts.SetQuantity(r.Context(), identity(r), req.ItemID, req.Quantity, req.SelectedVariations); err != nil {
		respondDomainError(w, err)
		return
	}
	h.GetCart(w, r)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.carts.Remove(r.Context(), identity(r), req.ItemID, req.SelectedVariations); err != nil {
		respondDomainError(w, err)
		return
	}
	h.GetCart(w, r)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), identity(r)); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
