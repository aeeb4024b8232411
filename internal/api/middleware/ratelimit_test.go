package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/stretchr/testify/assert"
)

func serveAs(h http.Handler, userID string) int {
	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req = req.WithContext(WithIdentity(req.Context(), auth.Identity{UserID: userID}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_PerUserBudget(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	assert.Equal(t, http.StatusOK, serveAs(h, "alice"))
	assert.Equal(t, http.StatusOK, serveAs(h, "alice"))
	assert.Equal(t, http.StatusTooManyRequests, serveAs(h, "alice"))

	// another user has their own bucket
	assert.Equal(t, http.StatusOK, serveAs(h, "bob"))
}
