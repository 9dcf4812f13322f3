package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig(testSecret, "backoffice"))

	token, expiresAt, err := svc.GenerateToken(TokenRequest{
		UserID:   "cashier-7",
		Email:    "caja7@example.do",
		Roles:    []string{"cashier"},
		StoreIDs: []string{"0191f3a0-0000-7000-8000-000000000001"},
	})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cashier-7", user.UserID)
	assert.Equal(t, "caja7@example.do", user.Email)
	assert.Equal(t, []string{"cashier"}, user.Roles)
	assert.True(t, user.HasStoreAccess("0191f3a0-0000-7000-8000-000000000001"))
}

func TestValidate_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig(testSecret, "backoffice"))

	other := NewJWTService(DefaultJWTConfig("another-secret-another-secret!!", "backoffice"))
	forged, _, err := other.GenerateToken(TokenRequest{UserID: "u"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.Error(t, err, "wrong secret")

	wrongIssuer := NewJWTService(DefaultJWTConfig(testSecret, "elsewhere"))
	tok, _, err := wrongIssuer.GenerateToken(TokenRequest{UserID: "u"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(tok)
	assert.Error(t, err, "wrong issuer")

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "backoffice",
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.ValidateToken(stale)
	assert.Error(t, err, "expired")

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "backoffice", Subject: "u"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.ValidateToken(noExp)
	assert.Error(t, err, "missing exp")

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestValidate_SubjectFallback(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig(testSecret, ""))
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"admin"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	user, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", user.UserID)
}

func TestGenerate_RequiresUser(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig(testSecret, ""))
	_, _, err := svc.GenerateToken(TokenRequest{})
	assert.Error(t, err)
}
