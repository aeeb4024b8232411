package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/example/ec-cart-sync/internal/domain/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CategoryResponse is one catalog category with its item count
type CategoryResponse struct {
	Name  string `json:"name"`
	Items int    `json:"items"`
}

// ListItems returns catalog items, filtered by the optional query parameters
// category, q (case-insensitive name match), min_price and max_price
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, err := h.catalog.List(r.Context(), query.Get("category"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var minPrice, maxPrice *decimal.Decimal
	if v := query.Get("min_price"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			minPrice = &d
		}
	}
	if v := query.Get("max_price"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			maxPrice = &d
		}
	}
	needle := strings.ToLower(query.Get("q"))

	filtered := make([]*catalog.Item, 0, len(items))
	for _, item := range items {
		if needle != "" && !strings.Contains(strings.ToLower(item.Name), needle) {
			continue
		}
		if minPrice != nil && item.Price.LessThan(*minPrice) {
			continue
		}
		if maxPrice != nil && item.Price.GreaterThan(*maxPrice) {
			continue
		}
		filtered = append(filtered, item)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })

	respondJSON(w, http.StatusOK, filtered)
}

// ListCategories returns the categories in use, ordered by name
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context(), "")
	if err != nil {
		respondDomainError(w, err)
		return
	}

	counts := make(map[string]int)
	for _, item := range items {
		if item.Category != "" {
			counts[item.Category]++
		}
	}
	categories := make([]CategoryResponse, 0, len(counts))
	for name, n := range counts {
		categories = append(categories, CategoryResponse{Name: name, Items: n})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })

	respondJSON(w, http.StatusOK, categories)
}

func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// PutItem creates or replaces an item (admin only)
func (h *Handlers) PutItem(w http.ResponseWriter, r *http.Request) {
	var item catalog.Item
	if !decode(w, r, &item) {
		return
	}
	item.ID = chi.URLParam(r, "id")

	saved, err := h.catalog.Put(r.Context(), &item)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

// DeleteItem removes an item (admin only)
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
