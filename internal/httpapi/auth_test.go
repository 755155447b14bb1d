package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarisari/backend/internal/domain"
)

func TestMintAndParseToken(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)

	token, expiresAt, err := auth.Mint("usr-cashier", domain.RoleCashier)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	actor, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: "usr-cashier", Role: domain.RoleCashier}, actor)
}

func TestMintRejectsUnknownRole(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)

	_, _, err := auth.Mint("usr-cashier", "manager")
	assert.Error(t, err)

	_, _, err = auth.Mint("  ", domain.RoleAdmin)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	issuer := NewAuthManager(testSecret, time.Minute)
	issuer.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	token, _, err := issuer.Mint("usr-admin", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = NewAuthManager(testSecret, time.Minute).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	token, _, err := NewAuthManager("another-secret-of-sufficient-length-123", time.Hour).Mint("usr-admin", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = NewAuthManager(testSecret, time.Hour).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsUnsignedAndForeignIssuer(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)

	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "usr-admin", Issuer: tokenIssuer},
		Role:             domain.RoleAdmin,
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(unsigned)
	assert.Error(t, err)

	foreign, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "usr-admin",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.ParseToken(foreign)
	assert.Error(t, err)
}
