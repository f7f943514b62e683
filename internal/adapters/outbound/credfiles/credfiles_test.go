package credfiles_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/adapters/outbound/credfiles"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

const team = domain.TeamID("ABCDE12345")

var appID = domain.MustAppIdentifier("com.acme.app")

func newFiles(t *testing.T) *credfiles.Files {
	t.Helper()
	f := credfiles.New(t.TempDir())
	require.NoError(t, f.Init(team))
	return f
}

func TestConfig_RoundTripKeepsUnknownKeys(t *testing.T) {
	t.Parallel()
	f := newFiles(t)
	path := filepath.Join(f.TeamDir(team), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("TEAM_ID=ABCDE12345\nFASTLANE_USER=ci@acme.com\n"), 0o600))

	cfg, err := f.LoadConfig(team)
	require.NoError(t, err)
	assert.Equal(t, "ABCDE12345", cfg.TeamID)
	assert.Equal(t, map[string]string{"FASTLANE_USER": "ci@acme.com"}, cfg.Extra)

	cfg.MarketingVersion = "1.2.0"
	cfg.APICreatedCertificateIDs = []string{"C1", "C2"}
	require.NoError(t, f.SaveConfig(team, cfg))

	again, err := f.LoadConfig(team)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", again.MarketingVersion)
	assert.Equal(t, []string{"C1", "C2"}, again.APICreatedCertificateIDs)
	assert.Equal(t, "ci@acme.com", again.Extra["FASTLANE_USER"])
}

func TestConfig_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	cfg, err := credfiles.New(t.TempDir()).LoadConfig(team)
	require.NoError(t, err)
	assert.Empty(t, cfg.TeamID)
	assert.NotNil(t, cfg.Extra)
}

func TestKeyPairs_SaveAndVerify(t *testing.T) {
	t.Parallel()
	f := newFiles(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "Apple Development: Acme"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path, err := f.SaveKeyPair(team, "CERT1", key, der, "pw")
	require.NoError(t, err)

	pairs, err := f.KeyPairs(team)
	require.NoError(t, err)
	assert.Equal(t, []ports.KeyPairFile{{CertificateID: "CERT1", Path: path}}, pairs)

	cert, err := credfiles.VerifyKeyPair(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, "Apple Development: Acme", cert.Subject.CommonName)

	_, err = credfiles.VerifyKeyPair(path, "wrong")
	assert.Error(t, err)

	_, err = f.SaveKeyPair(team, "BAD", key, []byte("not der"), "pw")
	assert.Error(t, err)
}

func TestAPIKey(t *testing.T) {
	t.Parallel()
	f := newFiles(t)
	_, err := f.APIKeyPath(team)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	src := t.TempDir()
	write := func(name string) string {
		p := filepath.Join(src, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o600))
		return p
	}

	_, err = f.InstallAPIKey(team, write("key.p8"))
	assert.Error(t, err, "name must match AuthKey_*.p8")

	first, err := f.InstallAPIKey(team, write("AuthKey_AAA.p8"))
	require.NoError(t, err)
	second, err := f.InstallAPIKey(team, write("AuthKey_BBB.p8"))
	require.NoError(t, err)

	got, err := f.APIKeyPath(team)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.NoFileExists(t, first)
}

func TestProfiles_SaveAndLoad(t *testing.T) {
	t.Parallel()
	f := newFiles(t)
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := domain.NewProvisioningProfile(domain.ProvisioningProfile{
		ID:             "P1",
		UUID:           "6F1C2A4E-0000-4000-8000-000000000001",
		Name:           "signet com.acme.app app-store",
		Kind:           domain.ProfileAppStore,
		AppIdentifier:  appID,
		TeamID:         team,
		ExpiresAt:      expires,
		CertificateIDs: []string{"C1"},
		Content:        []byte("opaque"),
	})
	require.NoError(t, err)

	path, err := f.SaveProfile(team, p)
	require.NoError(t, err)

	local, err := f.LocalProfiles(team)
	require.NoError(t, err)
	require.Len(t, local, 1)
	got := local[0]
	assert.Equal(t, path, got.Path)
	assert.Equal(t, "P1", got.ID)
	assert.Equal(t, p.UUID, got.UUID)
	assert.Equal(t, domain.ProfileAppStore, got.Kind)
	assert.Equal(t, appID, got.AppIdentifier)
	assert.Equal(t, []string{"C1"}, got.CertificateIDs)
	assert.True(t, expires.Equal(got.ExpiresAt))
}

func TestLocalProfiles_SkipsForeignAndBroken(t *testing.T) {
	t.Parallel()
	f := newFiles(t)
	dir := filepath.Join(f.TeamDir(team), "profiles")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mobileprovision"), []byte("garbage"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.mobileprovision"), profilePList("ZZZZZ99999", "", false), 0o600))

	local, err := f.LocalProfiles(team)
	require.NoError(t, err)
	assert.Empty(t, local)
}

func profilePList(teamID, devices string, getTaskAllow bool) []byte {
	return fmt.Appendf(nil, `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0"><dict>
<key>UUID</key><string>U-1</string>
<key>Name</key><string>Acme</string>
<key>TeamIdentifier</key><array><string>%[1]s</string></array>
<key>ExpirationDate</key><date>2027-01-01T00:00:00Z</date>
%[2]s
<key>Entitlements</key><dict>
<key>application-identifier</key><string>%[1]s.com.acme.app</string>
<key>get-task-allow</key><%[3]t/>
</dict>
</dict></plist>`, teamID, devices, getTaskAllow)
}

func TestParseProfile_InfersKind(t *testing.T) {
	t.Parallel()
	devices := "<key>ProvisionedDevices</key><array><string>D1</string></array>"
	tests := []struct {
		name         string
		devices      string
		getTaskAllow bool
		want         domain.ProfileKind
	}{
		{name: "no devices", want: domain.ProfileAppStore},
		{name: "devices with debugging", devices: devices, getTaskAllow: true, want: domain.ProfileDevelopment},
		{name: "devices without debugging", devices: devices, want: domain.ProfileAdHoc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// Signed profiles wrap the plist in CMS bytes.
			data := append([]byte{0x30, 0x82, 0x01}, profilePList(string(team), tt.devices, tt.getTaskAllow)...)
			p, err := credfiles.ParseProfile(data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Kind)
			assert.Equal(t, "U-1", p.ID)
			assert.Equal(t, appID, p.AppIdentifier)
		})
	}
}

func TestParseProfile_Invalid(t *testing.T) {
	t.Parallel()
	for name, data := range map[string][]byte{
		"no plist": []byte("nothing here"),
		"no team":  []byte(`<?xml version="1.0"?><plist version="1.0"><dict><key>UUID</key><string>U</string></dict></plist>`),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := credfiles.ParseProfile(data)
			assert.ErrorIs(t, err, domain.ErrProfileInvalid)
		})
	}
}
