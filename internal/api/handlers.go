package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-cart-sync/internal/api/middleware"
	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/example/ec-cart-sync/internal/checkout"
	"github.com/example/ec-cart-sync/internal/domain/cart"
	"github.com/example/ec-cart-sync/internal/domain/catalog"
	"github.com/example/ec-cart-sync/internal/domain/logistics"
	"github.com/example/ec-cart-sync/internal/domain/order"
	"github.com/example/ec-cart-sync/internal/notification"
	"github.com/example/ec-cart-sync/internal/payment"
	"github.com/example/ec-cart-sync/internal/projection"
)

// Services are the collaborators the handlers call into
type Services struct {
	Carts       *cart.Service
	Projections *projection.Manager
	Checkout    *checkout.Service
	Orders      *order.Service
	Catalog     *catalog.Service
	Logistics   *logistics.Service
	Notices     *notification.Center
}

type Handlers struct {
	carts       *cart.Service
	projections *projection.Manager
	checkout    *checkout.Service
	orders      *order.Service
	catalog     *catalog.Service
	logistics   *logistics.Service
	notices     *notification.Center
}

func NewHandlers(s Services) *Handlers {
	return &Handlers{
		carts:       s.Carts,
		projections: s.Projections,
		checkout:    s.Checkout,
		orders:      s.Orders,
		catalog:     s.Catalog,
		logistics:   s.Logistics,
		notices:     s.Notices,
	}
}

// Notification Handlers

// GetNotifications hands the caller its queued messages and empties the queue
func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	notices := h.notices.Drain(id.UserID)
	if notices == nil {
		notices = []notification.Notification{}
	}
	respondJSON(w, http.StatusOK, notices)
}

// Helper functions

// errorStatus maps domain sentinels to HTTP statuses. The sentinel's own
// text is the response message, so wrapped causes never reach the client.
var errorStatus = []struct {
	err    error
	status int
}{
	{cart.ErrNoIdentity, http.StatusUnauthorized},
	{checkout.ErrNoIdentity, http.StatusUnauthorized},
	{cart.ErrInvalidItem, http.StatusBadRequest},
	{catalog.ErrInvalidName, http.StatusBadRequest},
	{catalog.ErrInvalidPrice, http.StatusBadRequest},
	{logistics.ErrInvalidWeight, http.StatusBadRequest},
	{logistics.ErrUnknownCourier, http.StatusBadRequest},
	{checkout.ErrEmptyCart, http.StatusUnprocessableEntity},
	{cart.ErrNotInCart, http.StatusNotFound},
	{catalog.ErrItemNotFound, http.StatusNotFound},
	{order.ErrOrderNotFound, http.StatusNotFound},
	{logistics.ErrShipmentNotFound, http.StatusNotFound},
	{checkout.ErrNoPendingOrder, http.StatusNotFound},
	{order.ErrInvalidStatus, http.StatusConflict},
	{logistics.ErrAlreadyDelivered, http.StatusConflict},
	{checkout.ErrInvalidTransition, http.StatusConflict},
	{payment.ErrNotConfigured, http.StatusServiceUnavailable},
}

// respondDomainError converts a service error into a JSON error response
func respondDomainError(w http.ResponseWriter, err error) {
	var gerr *payment.GatewayError
	if errors.As(err, &gerr) {
		respondJSONError(w, gerr.Error(), http.StatusBadGateway)
		return
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			respondJSONError(w, m.err.Error(), m.status)
			return
		}
	}
	log.Printf("[API] Error handling request: %v", err)
	respondJSONError(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v, answering 400 itself on failure
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// identity returns the authenticated caller, or the anonymous identity
func identity(r *http.Request) auth.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}
