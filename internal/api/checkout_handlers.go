package api

import (
	"net/http"

	"github.com/example/ec-cart-sync/internal/domain/order"
	"github.com/go-chi/chi/v5"
)

type OrderRequest struct {
	OrderID string `json:"orderId"`
}

// Checkout Handlers

// BeginCheckout snapshots the cart (or resumes an unfinished checkout) and
// returns the hosted payment page to redirect to
func (h *Handlers) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	handoff, err := h.checkout.Begin(r.Context(), identity(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if handoff.Resumed {
		status = http.StatusOK
	}
	respondJSON(w, status, handoff)
}

func (h *Handlers) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		respondJSONError(w, "orderId is required", http.StatusBadRequest)
		return
	}
	o, err := h.checkout.Confirm(r.Context(), identity(r), req.OrderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		respondJSONError(w, "orderId is required", http.StatusBadRequest)
		return
	}
	if err := h.checkout.Abandon(r.Context(), identity(r), req.OrderID); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	progress, err := h.checkout.Status(r.Context(), identity(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForUser(r.Context(), identity(r).UserID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// users can only see their own orders, admins can see all
	id := identity(r)
	if o.UserID != id.UserID && !id.IsAdmin() {
		respondJSONError(w, "Forbidden", http.StatusForbidden)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
