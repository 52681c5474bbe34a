package services

import (
	"testing"
	"time"

	"chaty/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signToken issues a token the way the auth service does.
func signToken(t *testing.T, secret, userID string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"iss": "chaty-backend",
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret")
	tok := signToken(t, "secret", "alice", time.Minute)

	userID, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestTokenRejections(t *testing.T) {
	svc := NewTokenService("secret")

	expired := signToken(t, "secret", "alice", -time.Minute)
	otherKey := signToken(t, "other", "alice", time.Minute)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":    expired,
		"wrong key":  otherKey,
		"no expiry":  noExp,
		"no subject": noSub,
		"garbage":    "a.b.c",
		"empty":      "",
		"alg none":   "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJhbGljZSJ9.",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(tok)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}
