package api

import (
	"log"
	"net/http"
	"time"

	"github.com/example/ec-cart-sync/internal/api/middleware"
	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	Tokens       *auth.TokenService
	// CheckoutLimiter throttles POST /checkout per user; nil disables it
	CheckoutLimiter *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	requireAuth := middleware.AuthMiddleware(cfg.Tokens)
	requireAdmin := middleware.RequireRole(auth.RoleAdmin)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(withLogging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Catalog: reads are public, writes are admin only
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)
		r.Get("/items", h.ListItems)
		r.Get("/items/{id}", h.GetItem)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, requireAdmin)
			r.Put("/items/{id}", h.PutItem)
			r.Delete("/items/{id}", h.DeleteItem)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		if cfg.AuthHandlers != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Get("/me", cfg.AuthHandlers.Me)
				r.Post("/refresh", cfg.AuthHandlers.Refresh)
				r.Post("/logout", cfg.AuthHandlers.Logout)
			})
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddToCart)
			r.Put("/items", h.UpdateCartItem)
			r.Delete("/items", h.RemoveFromCart)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", h.GetCheckout)
			r.With(limit(cfg.CheckoutLimiter)).Post("/", h.BeginCheckout)
			r.Post("/confirm", h.ConfirmCheckout)
			r.Post("/cancel", h.CancelCheckout)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.GetOrders)
			r.Get("/{id}", h.GetOrder)
		})

		r.Route("/logistics", func(r chi.Router) {
			r.Post("/quote", h.QuoteShipping)
			r.Post("/shipments", h.CreateShipment)
			r.Get("/shipments/{tracking}", h.TrackShipment)
			r.With(requireAdmin).Post("/shipments/{tracking}/advance", h.AdvanceShipment)
		})

		r.Get("/notifications", h.GetNotifications)
	})

	return r
}

func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Printf("[API] %s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
