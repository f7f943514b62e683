package connectapi

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"k8s.io/utils/clock"
)

const (
	tokenAudience = "appstoreconnect-v1"
	// The service rejects tokens that live longer than 20 minutes.
	tokenLifetime = 20 * time.Minute
	tokenRenewal  = time.Minute
)

// tokenSource mints and caches bearer tokens for one API key.
type tokenSource struct {
	keyID  string
	issuer string
	key    *ecdsa.PrivateKey
	clock  clock.PassiveClock

	mu      sync.Mutex
	token   string
	expires time.Time
}

// loadKey reads a PKCS#8 PEM private key (AuthKey_<id>.p8).
func loadKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path) // #nosec G304 - key path comes from the team directory
	if err != nil {
		return nil, fmt.Errorf("read api key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse api key %s: %w", path, err)
	}
	return key, nil
}

func newTokenSource(keyID, issuer string, key *ecdsa.PrivateKey, clk clock.PassiveClock) *tokenSource {
	return &tokenSource{keyID: keyID, issuer: issuer, key: key, clock: clk}
}

// Token returns a cached token, minting a new one shortly before expiry.
func (s *tokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.token != "" && now.Add(tokenRenewal).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(tokenLifetime)
	t := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	t.Header["kid"] = s.keyID

	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign api token: %w", err)
	}
	s.token, s.expires = signed, expires
	return signed, nil
}
