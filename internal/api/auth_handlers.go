package api

import (
	"log"
	"net/http"

	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/example/ec-cart-sync/internal/projection"
)

const accessTokenCookie = "access_token"

// AuthHandlers manages the caller's session. Tokens are issued elsewhere
// (cartctl token or an identity provider); these handlers only refresh and end them.
type AuthHandlers struct {
	tokens      *auth.TokenService
	projections *projection.Manager
}

func NewAuthHandlers(tokens *auth.TokenService, projections *projection.Manager) *AuthHandlers {
	return &AuthHandlers{
		tokens:      tokens,
		projections: projections,
	}
}

// Me returns the current authenticated user's identity
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, identity(r))
}

// Refresh re-issues the access token for the current identity
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	token, expiresAt, err := h.tokens.Issue(id)
	if err != nil {
		log.Printf("[API] Error issuing token for user %s: %v", id.UserID, err)
		respondJSONError(w, "Failed to refresh token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// Logout tears down the caller's cart projection and remote feed and clears the cookie
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.projections.Detach(identity(r).UserID)

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logout successful",
	})
}
