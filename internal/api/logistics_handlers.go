package api

import (
	"net/http"

	"github.com/example/ec-cart-sync/internal/domain/logistics"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type QuoteRequest struct {
	Origin      logistics.Address `json:"origin"`
	Destination logistics.Address `json:"destination"`
	Weight      decimal.Decimal   `json:"weight"`
}

type ShipmentRequest struct {
	QuoteRequest
	Courier logistics.Courier `json:"courier"`
}

type AdvanceRequest struct {
	Location    string `json:"location"`
	Description string `json:"description"`
}

func (h *Handlers) QuoteShipping(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decode(w, r, &req) {
		return
	}
	rates, err := h.logistics.Quote(r.Context(), req.Origin, req.Destination, req.Weight)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rates)
}

func (h *Handlers) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req ShipmentRequest
	if !decode(w, r, &req) {
		return
	}
	sh, err := h.logistics.CreateShipment(r.Context(), req.Origin, req.Destination, req.Weight, req.Courier)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sh)
}

func (h *Handlers) TrackShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := h.logistics.Track(r.Context(), chi.URLParam(r, "tracking"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sh)
}

// AdvanceShipment moves a shipment to its next status (admin only)
func (h *Handlers) AdvanceShipment(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	sh, err := h.logistics.AdvanceShipment(r.Context(), chi.URLParam(r, "tracking"), req.Location, req.Description)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sh)
}
