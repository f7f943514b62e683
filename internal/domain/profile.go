package domain

import (
	"fmt"
	"slices"
	"time"
)

// ProvisioningProfile binds an app identifier, a set of certificates and
// (for development and ad-hoc kinds) devices. Profiles are never mutated,
// only replaced.
type ProvisioningProfile struct {
	ID             string
	UUID           string
	Name           string
	Kind           ProfileKind
	AppIdentifier  AppIdentifier
	TeamID         TeamID
	ExpiresAt      time.Time
	CertificateIDs []string
	DeviceIDs      []string
	Content        []byte
	Path           string
}

// NewProvisioningProfile validates p and returns a normalized copy.
func NewProvisioningProfile(p ProvisioningProfile) (ProvisioningProfile, error) {
	if p.ID == "" && p.UUID == "" {
		return ProvisioningProfile{}, fmt.Errorf("%w: missing id", ErrProfileInvalid)
	}
	if err := p.Kind.Validate(); err != nil {
		return ProvisioningProfile{}, fmt.Errorf("%w: %v", ErrProfileInvalid, err)
	}
	if p.AppIdentifier.IsZero() {
		return ProvisioningProfile{}, fmt.Errorf("%w: missing app identifier", ErrProfileInvalid)
	}
	if p.TeamID == "" {
		return ProvisioningProfile{}, fmt.Errorf("%w: missing team", ErrProfileInvalid)
	}
	p.CertificateIDs = sortedCopy(p.CertificateIDs)
	if p.Kind.RequiresDevices() {
		p.DeviceIDs = sortedCopy(p.DeviceIDs)
	} else {
		p.DeviceIDs = nil
	}
	if p.Content != nil {
		p.Content = slices.Clone(p.Content)
	}
	return p, nil
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// Key is the identity used to deduplicate profiles seen remotely and on disk.
func (p ProvisioningProfile) Key() string {
	if p.UUID != "" {
		return p.UUID
	}
	return p.ID
}

// IsExpired reports whether the profile has expired at now.
func (p ProvisioningProfile) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Covers reports whether the profile's app identifier covers app.
func (p ProvisioningProfile) Covers(app AppIdentifier) bool {
	return p.AppIdentifier.Covers(app)
}

// SharesCertificate reports whether any certificate id of the profile
// appears among certs.
func (p ProvisioningProfile) SharesCertificate(certs []Certificate) bool {
	for _, c := range certs {
		if slices.Contains(p.CertificateIDs, c.ID) {
			return true
		}
	}
	return false
}

// UsableFor reports whether the profile can sign app for team right now:
// right kind, owned by team, covering app, non-expired, and bound to at
// least one available certificate.
func (p ProvisioningProfile) UsableFor(team TeamID, app AppIdentifier, kind ProfileKind, certs []Certificate, now time.Time) bool {
	return p.TeamID == team &&
		p.Kind == kind &&
		p.Covers(app) &&
		!p.IsExpired(now) &&
		p.SharesCertificate(certs)
}

// WithPath returns a copy stored at path.
func (p ProvisioningProfile) WithPath(path string) ProvisioningProfile {
	p.Path = path
	return p
}
