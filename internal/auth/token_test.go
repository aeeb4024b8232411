package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	service, err := NewTokenService(testSecret, 15*time.Minute)
	require.NoError(t, err)
	return service
}

func TestNewTokenService_WeakSecret(t *testing.T) {
	service, err := NewTokenService("short", time.Minute)

	assert.ErrorIs(t, err, ErrWeakSecret)
	assert.Nil(t, service)
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	service := newTestTokenService(t)
	id := Identity{UserID: "user-456", Email: "test@example.com", Role: RoleAdmin}

	token, expiresAt, err := service.Issue(id)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	got, err := service.Validate(token)

	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.True(t, got.IsAdmin())
}

func TestTokenService_Validate_Expired(t *testing.T) {
	service := newTestTokenService(t)
	issuedAt := time.Now()
	service.now = func() time.Time { return issuedAt }

	token, _, err := service.Issue(Identity{UserID: "user-123", Role: RoleCustomer})
	require.NoError(t, err)

	service.now = func() time.Time { return issuedAt.Add(16 * time.Minute) }
	got, err := service.Validate(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.True(t, got.Anonymous())
}

func TestTokenService_Validate_Invalid(t *testing.T) {
	service := newTestTokenService(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.True(t, got.Anonymous())
		})
	}
}

func TestTokenService_Validate_WrongSignature(t *testing.T) {
	service1, err := NewTokenService("secret-key-1-secret-key-1-secret-key-1", 15*time.Minute)
	require.NoError(t, err)
	service2, err := NewTokenService("secret-key-2-secret-key-2-secret-key-2", 15*time.Minute)
	require.NoError(t, err)

	token, _, err := service1.Issue(Identity{UserID: "user-123"})
	require.NoError(t, err)

	_, err = service2.Validate(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Validate_WrongAlgorithm(t *testing.T) {
	service := newTestTokenService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Email: "test@example.com",
		Role:  RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  tokenIssuer,
			Subject: "user-123",
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.Validate(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Validate_ForeignIssuer(t *testing.T) {
	service := newTestTokenService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	tokenString, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = service.Validate(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Validate_MissingSubject(t *testing.T) {
	service := newTestTokenService(t)

	token, _, err := service.Issue(Identity{Email: "nobody@example.com"})
	require.NoError(t, err)

	_, err = service.Validate(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentity(t *testing.T) {
	assert.True(t, Identity{}.Anonymous())
	assert.False(t, Identity{UserID: "u1"}.Anonymous())
	assert.False(t, Identity{UserID: "u1", Role: RoleCustomer}.IsAdmin())
	assert.True(t, Identity{UserID: "u1", Role: RoleAdmin}.IsAdmin())
}
