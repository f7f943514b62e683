package domain

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sufield/signet/internal/assert"
)

// CredentialStore holds the certificates and provisioning profiles known for
// each team. It is the single place the per-kind quota invariant is checked:
// the number of non-expired certificates of a kind never exceeds Kind.Quota().
//
// Concurrency: safe for concurrent use.
type CredentialStore struct {
	mu           sync.RWMutex
	certificates map[TeamID]map[string]Certificate
	profiles     map[TeamID]map[string]ProvisioningProfile
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		certificates: make(map[TeamID]map[string]Certificate),
		profiles:     make(map[TeamID]map[string]ProvisioningProfile),
	}
}

// PutCertificate adds or replaces a certificate.
// Returns ErrCertificateLimitExceeded if storing a non-expired certificate
// would exceed the kind's quota at now, including when it replaces an expired
// entry or one of another kind under the same id.
func (s *CredentialStore) PutCertificate(c Certificate, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team := s.certificates[c.TeamID]
	if team == nil {
		team = make(map[string]Certificate)
		s.certificates[c.TeamID] = team
	}
	if !c.IsExpired(now) {
		n := countValid(team, c.Kind, now)
		// A replaced entry only frees its slot if it already held one.
		if old, ok := team[c.ID]; ok && old.Kind == c.Kind && !old.IsExpired(now) {
			n--
		}
		if n >= c.Kind.Quota() {
			return fmt.Errorf("%w: team %s already has %d %s certificates",
				ErrCertificateLimitExceeded, c.TeamID, c.Kind.Quota(), c.Kind)
		}
	}
	team[c.ID] = c
	assert.Invariant(countValid(team, c.Kind, now) <= c.Kind.Quota(), "certificate quota exceeded after put")
	return nil
}

// ReplaceCertificates replaces every certificate of kind for team with certs.
// Returns ErrCertificateLimitExceeded if certs holds more non-expired entries
// than the quota allows; the store is left unchanged in that case.
func (s *CredentialStore) ReplaceCertificates(team TeamID, kind CertificateKind, certs []Certificate, now time.Time) error {
	valid := 0
	for _, c := range certs {
		if c.TeamID != team || c.Kind != kind {
			return fmt.Errorf("%w: certificate %s does not belong to %s/%s", ErrCertificateInvalid, c.ID, team, kind)
		}
		if !c.IsExpired(now) {
			valid++
		}
	}
	if valid > kind.Quota() {
		return fmt.Errorf("%w: %d non-expired %s certificates for team %s", ErrCertificateLimitExceeded, valid, kind, team)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.certificates[team]
	next := make(map[string]Certificate, len(existing)+len(certs))
	for id, c := range existing {
		if c.Kind != kind {
			next[id] = c
		}
	}
	for _, c := range certs {
		next[c.ID] = c
	}
	s.certificates[team] = next
	return nil
}

// RemoveCertificate deletes a certificate; missing ids are ignored.
func (s *CredentialStore) RemoveCertificate(team TeamID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certificates[team], id)
}

// Certificate looks up a certificate by id.
func (s *CredentialStore) Certificate(team TeamID, id string) (Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certificates[team][id]
	return c, ok
}

// Certificates returns every certificate of kind for team, most recently issued first.
func (s *CredentialStore) Certificates(team TeamID, kind CertificateKind) []Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Certificate
	for _, c := range s.certificates[team] {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	sortNewestFirst(out)
	return out
}

// ValidCertificates returns non-expired certificates, most recently issued first.
func (s *CredentialStore) ValidCertificates(team TeamID, kind CertificateKind, now time.Time) []Certificate {
	var out []Certificate
	for _, c := range s.Certificates(team, kind) {
		if !c.IsExpired(now) {
			out = append(out, c)
		}
	}
	return out
}

// UsableCertificates returns valid certificates whose private key is available
// locally, most recently issued first.
func (s *CredentialStore) UsableCertificates(team TeamID, kind CertificateKind, now time.Time) []Certificate {
	var out []Certificate
	for _, c := range s.ValidCertificates(team, kind, now) {
		if c.HasPrivateKey() {
			out = append(out, c)
		}
	}
	return out
}

// CountValid returns the number of non-expired certificates of kind.
func (s *CredentialStore) CountValid(team TeamID, kind CertificateKind, now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countValid(s.certificates[team], kind, now)
}

// AtQuota reports whether the team has no room for another certificate of kind.
func (s *CredentialStore) AtQuota(team TeamID, kind CertificateKind, now time.Time) bool {
	return s.CountValid(team, kind, now) >= kind.Quota()
}

// CleanupCandidates orders the non-expired certificates of kind by removal
// preference: api-created certificates first, then everything else; within
// each group the one expiring soonest comes first.
func (s *CredentialStore) CleanupCandidates(team TeamID, kind CertificateKind, now time.Time) []Certificate {
	return OrderCleanupCandidates(s.ValidCertificates(team, kind, now), now)
}

// OrderCleanupCandidates applies the CleanupCandidates ordering to certs that
// are not held in a store, dropping expired entries.
func OrderCleanupCandidates(certs []Certificate, now time.Time) []Certificate {
	var valid []Certificate
	for _, c := range certs {
		if !c.IsExpired(now) {
			valid = append(valid, c)
		}
	}
	sortNewestFirst(valid)
	slices.SortStableFunc(valid, func(a, b Certificate) int {
		ap, bp := a.Origin == OriginAPICreated, b.Origin == OriginAPICreated
		switch {
		case ap && !bp:
			return -1
		case bp && !ap:
			return 1
		}
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	return valid
}

// SweepExpired removes expired certificates of every kind for team and returns them.
func (s *CredentialStore) SweepExpired(team TeamID, now time.Time) []Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []Certificate
	for id, c := range s.certificates[team] {
		if c.IsExpired(now) {
			removed = append(removed, c)
			delete(s.certificates[team], id)
		}
	}
	sortNewestFirst(removed)
	return removed
}

// PutProfile adds or replaces a profile, keyed by ProvisioningProfile.Key.
func (s *CredentialStore) PutProfile(p ProvisioningProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team := s.profiles[p.TeamID]
	if team == nil {
		team = make(map[string]ProvisioningProfile)
		s.profiles[p.TeamID] = team
	}
	team[p.Key()] = p
}

// RemoveProfile deletes a profile by key.
func (s *CredentialStore) RemoveProfile(team TeamID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles[team], key)
}

// Profiles returns every profile of team, latest expiration first.
func (s *CredentialStore) Profiles(team TeamID) []ProvisioningProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProvisioningProfile, 0, len(s.profiles[team]))
	for _, p := range s.profiles[team] {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b ProvisioningProfile) int {
		if c := b.ExpiresAt.Compare(a.ExpiresAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

// UsableProfiles returns profiles usable for app/kind with certs, preferring
// exact identifiers over wildcards and then the latest expiration.
func (s *CredentialStore) UsableProfiles(team TeamID, app AppIdentifier, kind ProfileKind, certs []Certificate, now time.Time) []ProvisioningProfile {
	var out []ProvisioningProfile
	for _, p := range s.Profiles(team) {
		if p.UsableFor(team, app, kind, certs, now) {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b ProvisioningProfile) int {
		aw, bw := a.AppIdentifier.IsWildcard(), b.AppIdentifier.IsWildcard()
		switch {
		case !aw && bw:
			return -1
		case aw && !bw:
			return 1
		}
		return 0
	})
	return out
}

func countValid(team map[string]Certificate, kind CertificateKind, now time.Time) int {
	n := 0
	for _, c := range team {
		if c.Kind == kind && !c.IsExpired(now) {
			n++
		}
	}
	return n
}

func sortNewestFirst(certs []Certificate) {
	slices.SortFunc(certs, func(a, b Certificate) int {
		if c := b.IssuedAt.Compare(a.IssuedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
