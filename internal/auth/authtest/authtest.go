// Package authtest mints bearer tokens for tests of the API and middleware.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robcowart/docsign/internal/auth"
	"github.com/stretchr/testify/require"
)

// Token returns an HS256 token for userID that expires after ttl. A
// negative ttl yields an already expired token.
func Token(t testing.TB, userID, secret, issuer string, ttl time.Duration) string {
	t.Helper()
	return sign(t, jwt.SigningMethodHS256, &auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}, secret)
}

// WithClaims signs arbitrary claims with method.
func WithClaims(t testing.TB, method jwt.SigningMethod, claims jwt.Claims, secret string) string {
	t.Helper()
	return sign(t, method, claims, secret)
}

func sign(t testing.TB, method jwt.SigningMethod, claims jwt.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}
