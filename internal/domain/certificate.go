package domain

import (
	"fmt"
	"time"
)

// Certificate is a code-signing identity issued for a team.
//
// KeyRef points to the exported key pair (.p12) for this certificate. A
// certificate without a KeyRef is known (it counts against quota) but cannot
// sign on this machine.
type Certificate struct {
	ID        string
	Name      string
	Kind      CertificateKind
	TeamID    TeamID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Origin    CertificateOrigin
	KeyRef    string
}

// NewCertificate validates and builds a certificate value.
func NewCertificate(id string, kind CertificateKind, team TeamID, issuedAt, expiresAt time.Time, origin CertificateOrigin) (Certificate, error) {
	if id == "" {
		return Certificate{}, fmt.Errorf("%w: empty id", ErrCertificateInvalid)
	}
	if err := kind.Validate(); err != nil {
		return Certificate{}, fmt.Errorf("%w: %v", ErrCertificateInvalid, err)
	}
	if team == "" {
		return Certificate{}, fmt.Errorf("%w: empty team", ErrCertificateInvalid)
	}
	if err := origin.Validate(); err != nil {
		return Certificate{}, fmt.Errorf("%w: %v", ErrCertificateInvalid, err)
	}
	if expiresAt.IsZero() {
		return Certificate{}, fmt.Errorf("%w: missing expiration", ErrCertificateInvalid)
	}
	return Certificate{
		ID:        id,
		Kind:      kind,
		TeamID:    team,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Origin:    origin,
	}, nil
}

// IsExpired reports whether the certificate has expired at now.
func (c Certificate) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// HasPrivateKey reports whether the key pair is available locally.
func (c Certificate) HasPrivateKey() bool {
	return c.KeyRef != ""
}

// WithKeyRef returns a copy carrying the key pair location.
func (c Certificate) WithKeyRef(ref string) Certificate {
	c.KeyRef = ref
	return c
}

// WithOrigin returns a copy with a different origin.
func (c Certificate) WithOrigin(o CertificateOrigin) Certificate {
	c.Origin = o
	return c
}
