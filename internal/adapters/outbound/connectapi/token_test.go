package connectapi

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestTokenSource_CachesUntilRenewal(t *testing.T) {
	t.Parallel()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	fc := clocktesting.NewFakePassiveClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	src := newTokenSource("KEY1234567", "issuer", key, fc)

	first, err := src.Token()
	require.NoError(t, err)

	fc.SetTime(fc.Now().Add(10 * time.Minute))
	again, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	fc.SetTime(fc.Now().Add(9*time.Minute + 30*time.Second))
	renewed, err := src.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, renewed)

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(renewed, &claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"ES256"}), jwt.WithTimeFunc(fc.Now))
	require.NoError(t, err)
	assert.Equal(t, "KEY1234567", tok.Header["kid"])
	assert.Equal(t, jwt.ClaimStrings{tokenAudience}, claims.Audience)
	assert.Equal(t, tokenLifetime, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestLoadKey_RejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := loadKey(t.TempDir() + "/missing.p8")
	assert.Error(t, err)
}
