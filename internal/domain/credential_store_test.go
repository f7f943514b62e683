package domain_test

import (
	"fmt"
	"math/rand"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/domain"
)

const team = domain.TeamID("ABC1234567")

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cert(t *testing.T, id string, kind domain.CertificateKind, origin domain.CertificateOrigin, expiresIn time.Duration) domain.Certificate {
	t.Helper()
	c, err := domain.NewCertificate(id, kind, team, now.Add(expiresIn-365*24*time.Hour), now.Add(expiresIn), origin)
	require.NoError(t, err)
	return c
}

func TestCredentialStore_PutCertificate_EnforcesQuota(t *testing.T) {
	t.Parallel()

	s := domain.NewCredentialStore()
	require.NoError(t, s.PutCertificate(cert(t, "d1", domain.CertificateDevelopment, domain.OriginManual, 24*time.Hour), now))
	require.NoError(t, s.PutCertificate(cert(t, "d2", domain.CertificateDevelopment, domain.OriginManual, 48*time.Hour), now))

	err := s.PutCertificate(cert(t, "d3", domain.CertificateDevelopment, domain.OriginManual, 72*time.Hour), now)
	assert.ErrorIs(t, err, domain.ErrCertificateLimitExceeded)
	assert.Equal(t, 2, s.CountValid(team, domain.CertificateDevelopment, now))

	// Replacing an existing id does not count twice
	require.NoError(t, s.PutCertificate(cert(t, "d2", domain.CertificateDevelopment, domain.OriginImported, 96*time.Hour), now))

	// Expired certificates never count against quota
	require.NoError(t, s.PutCertificate(cert(t, "old", domain.CertificateDevelopment, domain.OriginManual, -time.Hour), now))
	assert.True(t, s.AtQuota(team, domain.CertificateDevelopment, now))
}

func TestCredentialStore_ReplaceCertificates_RejectsOverQuota(t *testing.T) {
	t.Parallel()

	s := domain.NewCredentialStore()
	certs := []domain.Certificate{
		cert(t, "a", domain.CertificateDevelopment, domain.OriginManual, time.Hour),
		cert(t, "b", domain.CertificateDevelopment, domain.OriginManual, time.Hour),
		cert(t, "c", domain.CertificateDevelopment, domain.OriginManual, time.Hour),
	}
	err := s.ReplaceCertificates(team, domain.CertificateDevelopment, certs, now)
	assert.ErrorIs(t, err, domain.ErrCertificateLimitExceeded)
	assert.Empty(t, s.Certificates(team, domain.CertificateDevelopment))
}

func TestCredentialStore_CleanupCandidates_PreferAPICreated(t *testing.T) {
	t.Parallel()

	s := domain.NewCredentialStore()
	certs := []domain.Certificate{
		cert(t, "manual-oldest", domain.CertificateDistribution, domain.OriginManual, 10*time.Hour),
		cert(t, "api-late", domain.CertificateDistribution, domain.OriginAPICreated, 300*time.Hour),
		cert(t, "api-early", domain.CertificateDistribution, domain.OriginAPICreated, 100*time.Hour),
	}
	require.NoError(t, s.ReplaceCertificates(team, domain.CertificateDistribution, certs, now))

	got := s.CleanupCandidates(team, domain.CertificateDistribution, now)
	require.Len(t, got, 3)
	assert.Equal(t, "api-early", got[0].ID)
	assert.Equal(t, "api-late", got[1].ID)
	assert.Equal(t, "manual-oldest", got[2].ID)
}

func TestCredentialStore_CleanupCandidates_OldestWhenNoAPICreated(t *testing.T) {
	t.Parallel()

	s := domain.NewCredentialStore()
	certs := []domain.Certificate{
		cert(t, "late", domain.CertificateDevelopment, domain.OriginImported, 200*time.Hour),
		cert(t, "early", domain.CertificateDevelopment, domain.OriginManual, 20*time.Hour),
	}
	require.NoError(t, s.ReplaceCertificates(team, domain.CertificateDevelopment, certs, now))

	got := s.CleanupCandidates(team, domain.CertificateDevelopment, now)
	require.NotEmpty(t, got)
	assert.Equal(t, "early", got[0].ID)
}

func TestCredentialStore_UsableCertificates_RequirePrivateKey(t *testing.T) {
	t.Parallel()

	s := domain.NewCredentialStore()
	withKey := cert(t, "with-key", domain.CertificateDevelopment, domain.OriginImported, time.Hour).WithKeyRef("/tmp/with-key.p12")
	require.NoError(t, s.PutCertificate(withKey, now))
	require.NoError(t, s.PutCertificate(cert(t, "no-key", domain.CertificateDevelopment, domain.OriginManual, 2*time.Hour), now))

	usable := s.UsableCertificates(team, domain.CertificateDevelopment, now)
	require.Len(t, usable, 1)
	assert.Equal(t, "with-key", usable[0].ID)
}

func TestCredentialStore_SweepExpired(t *testing.T) {
	t.Parallel()

	s := domain.NewCredentialStore()
	require.NoError(t, s.PutCertificate(cert(t, "gone", domain.CertificateDevelopment, domain.OriginManual, -time.Minute), now))
	require.NoError(t, s.PutCertificate(cert(t, "kept", domain.CertificateDevelopment, domain.OriginManual, time.Minute), now))

	removed := s.SweepExpired(team, now)
	require.Len(t, removed, 1)
	assert.Equal(t, "gone", removed[0].ID)
	assert.Len(t, s.Certificates(team, domain.CertificateDevelopment), 1)
}

// quotaHolds drives a random put/remove sequence derived from seed and reports
// whether the quota held after every step.
func quotaHolds(seed int64) bool {
	r := rand.New(rand.NewSource(seed))
	s := domain.NewCredentialStore()
	for i := 0; i < 50; i++ {
		kind := domain.CertificateKinds[r.Intn(2)]
		id := fmt.Sprintf("c%d", r.Intn(8))
		if r.Intn(4) == 0 {
			s.RemoveCertificate(team, id)
			continue
		}
		c, err := domain.NewCertificate(id, kind, team, now, now.Add(time.Duration(r.Intn(48)-12)*time.Hour), domain.OriginManual)
		if err != nil {
			return false
		}
		if existing, ok := s.Certificate(team, id); ok && existing.Kind != kind {
			s.RemoveCertificate(team, id)
		}
		_ = s.PutCertificate(c, now)
		for _, k := range domain.CertificateKinds {
			if s.CountValid(team, k, now) > k.Quota() {
				return false
			}
		}
	}
	return true
}

func TestCredentialStore_Invariant_QuotaNeverExceeded(t *testing.T) {
	t.Parallel()

	require.NoError(t, quick.Check(quotaHolds, &quick.Config{MaxCount: 500}))
}

func TestCredentialStore_Invariant_KnownSeeds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seed int64
	}{
		{name: "expired entry revived under same id", seed: 9016363242870423568},
		{name: "zero", seed: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, quotaHolds(tt.seed))
		})
	}
}

func TestCredentialStore_PutCertificate_ReplaceChecksQuota(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		existing  domain.Certificate
		wantErr   bool
		wantValid int
	}{
		{
			name:      "expired entry replaced by valid one",
			existing:  cert(t, "old", domain.CertificateDevelopment, domain.OriginManual, -time.Hour),
			wantErr:   true,
			wantValid: 2,
		},
		{
			name:      "entry of another kind replaced",
			existing:  cert(t, "old", domain.CertificateDistribution, domain.OriginManual, time.Hour),
			wantErr:   true,
			wantValid: 2,
		},
		{
			name:      "valid entry of same kind replaced",
			existing:  cert(t, "old", domain.CertificateDevelopment, domain.OriginManual, time.Hour),
			wantErr:   false,
			wantValid: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := domain.NewCredentialStore()
			require.NoError(t, s.PutCertificate(tt.existing, now))
			require.NoError(t, s.PutCertificate(cert(t, "a", domain.CertificateDevelopment, domain.OriginManual, 2*time.Hour), now))
			if s.CountValid(team, domain.CertificateDevelopment, now) < domain.CertificateDevelopment.Quota() {
				require.NoError(t, s.PutCertificate(cert(t, "b", domain.CertificateDevelopment, domain.OriginManual, 3*time.Hour), now))
			}

			err := s.PutCertificate(cert(t, "old", domain.CertificateDevelopment, domain.OriginManual, 24*time.Hour), now)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrCertificateLimitExceeded)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantValid, s.CountValid(team, domain.CertificateDevelopment, now))
		})
	}
}

func TestOrderCleanupCandidates(t *testing.T) {
	t.Parallel()

	got := domain.OrderCleanupCandidates([]domain.Certificate{
		cert(t, "manual", domain.CertificateDevelopment, domain.OriginManual, 10*time.Hour),
		cert(t, "expired", domain.CertificateDevelopment, domain.OriginAPICreated, -time.Hour),
		cert(t, "api", domain.CertificateDevelopment, domain.OriginAPICreated, 100*time.Hour),
	}, now)
	require.Len(t, got, 2)
	assert.Equal(t, "api", got[0].ID)
	assert.Equal(t, "manual", got[1].ID)
}

func TestCredentialStore_UsableProfiles(t *testing.T) {
	t.Parallel()

	s := domain.NewCredentialStore()
	dist := cert(t, "dist-1", domain.CertificateDistribution, domain.OriginAPICreated, 1000*time.Hour)
	app := domain.MustAppIdentifier("com.acme.app")

	mk := func(id, appID string, kind domain.ProfileKind, certIDs []string, expiresIn time.Duration, owner domain.TeamID) domain.ProvisioningProfile {
		p, err := domain.NewProvisioningProfile(domain.ProvisioningProfile{
			ID:             id,
			Name:           id,
			Kind:           kind,
			AppIdentifier:  domain.MustAppIdentifier(appID),
			TeamID:         owner,
			ExpiresAt:      now.Add(expiresIn),
			CertificateIDs: certIDs,
		})
		require.NoError(t, err)
		return p
	}

	s.PutProfile(mk("wildcard", "com.acme.*", domain.ProfileAppStore, []string{"dist-1"}, 500*time.Hour, team))
	s.PutProfile(mk("exact", "com.acme.app", domain.ProfileAppStore, []string{"dist-1"}, 100*time.Hour, team))
	s.PutProfile(mk("expired", "com.acme.app", domain.ProfileAppStore, []string{"dist-1"}, -time.Hour, team))
	s.PutProfile(mk("other-cert", "com.acme.app", domain.ProfileAppStore, []string{"dist-9"}, 100*time.Hour, team))
	s.PutProfile(mk("wrong-kind", "com.acme.app", domain.ProfileAdHoc, []string{"dist-1"}, 100*time.Hour, team))
	s.PutProfile(mk("other-team", "com.acme.app", domain.ProfileAppStore, []string{"dist-1"}, 100*time.Hour, "XYZ1234567"))

	got := s.UsableProfiles(team, app, domain.ProfileAppStore, []domain.Certificate{dist}, now)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].ID)
	assert.Equal(t, "wildcard", got[1].ID)
}
