package keychain_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/adapters/outbound/credfiles"
	"github.com/sufield/signet/internal/adapters/outbound/keychain"
	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

const team = domain.TeamID("ABCDE12345")

// identity writes a p12 and a cer for one self-signed certificate.
func identity(t *testing.T, id, password string) (p12, cer string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "Apple Distribution: Acme (" + string(team) + ")"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	files := credfiles.New(t.TempDir())
	require.NoError(t, files.Init(team))
	p12, err = files.SaveKeyPair(team, id, key, der, password)
	require.NoError(t, err)
	cer = filepath.Join(t.TempDir(), id+".cer")
	require.NoError(t, os.WriteFile(cer, der, 0o600))
	return p12, cer
}

func TestDirectory_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := keychain.NewDirectory()
	path := filepath.Join(t.TempDir(), "run.keychain-db")
	p12, cer := identity(t, "CERT1", "p12-secret")

	require.NoError(t, d.CreateContainer(ctx, path, "pw"))
	assert.Error(t, d.CreateContainer(ctx, path, "pw"), "existing path must not be overwritten")

	err := d.ImportIdentity(ctx, path, p12, "p12-secret")
	assert.ErrorContains(t, err, "locked")

	assert.ErrorContains(t, d.UnlockContainer(ctx, path, "nope"), "wrong password")
	require.NoError(t, d.UnlockContainer(ctx, path, "pw"))

	require.NoError(t, d.ImportIdentity(ctx, path, p12, "p12-secret"))
	require.NoError(t, d.ImportIdentity(ctx, path, cer, ""))
	require.NoError(t, d.ImportIdentity(ctx, path, p12, "p12-secret"), "re-import is a no-op")

	ids, err := d.Identities(path)
	require.NoError(t, err)
	require.Len(t, ids, 1, "p12 and cer carry the same certificate")
	assert.True(t, ids[0].HasKey)
	assert.True(t, strings.HasPrefix(ids[0].Subject, "Apple Distribution"))

	require.NoError(t, d.DeleteContainer(ctx, path))
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, d.DeleteContainer(ctx, path), ports.ErrNotFound)
}

func TestDirectory_RejectsBrokenIdentities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := keychain.NewDirectory()
	path := filepath.Join(t.TempDir(), "run.keychain-db")
	require.NoError(t, d.CreateContainer(ctx, path, "pw"))
	require.NoError(t, d.UnlockContainer(ctx, path, "pw"))
	p12, _ := identity(t, "CERT1", "right")

	garbage := filepath.Join(t.TempDir(), "garbage.cer")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))
	unsupported := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(unsupported, []byte("x"), 0o600))

	tests := []struct {
		name, file, password, want string
	}{
		{"wrong p12 password", p12, "wrong", "CERT1.p12"},
		{"unparseable cer", garbage, "", "garbage.cer"},
		{"unsupported type", unsupported, "", "unsupported"},
		{"missing file", filepath.Join(t.TempDir(), "gone.p12"), "", "gone.p12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ImportIdentity(ctx, path, tt.file, tt.password)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	ids, err := d.Identities(path)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDirectory_UnlockMissing(t *testing.T) {
	t.Parallel()
	err := keychain.NewDirectory().UnlockContainer(context.Background(), filepath.Join(t.TempDir(), "x"), "pw")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

// fakeSecurity emulates the file side effects of the security tool.
func fakeSecurity(t *testing.T) *toolexec.Script {
	return &toolexec.Script{Handle: func(cmd toolexec.Command) (toolexec.Result, error) {
		switch cmd.Args[0] {
		case "create-keychain":
			path := cmd.Args[len(cmd.Args)-1]
			require.NoError(t, os.WriteFile(path, []byte("kc"), 0o600))
		case "delete-keychain":
			require.NoError(t, os.Remove(cmd.Args[1]))
		}
		return toolexec.Result{}, nil
	}}
}

func TestSecurityCLI_Commands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	script := fakeSecurity(t)
	s := keychain.NewSecurityCLI(script, time.Hour, nil)
	path := filepath.Join(t.TempDir(), "run.keychain-db")

	require.NoError(t, s.CreateContainer(ctx, path, "pw"))
	assert.Error(t, s.CreateContainer(ctx, path, "pw"))
	require.NoError(t, s.UnlockContainer(ctx, path, "pw"))
	require.NoError(t, s.ImportIdentity(ctx, path, "/certs/CERT1.p12", "p12pw"))
	require.NoError(t, s.ImportIdentity(ctx, path, "/certs/manual.cer", ""))
	require.NoError(t, s.DeleteContainer(ctx, path))
	assert.ErrorIs(t, s.DeleteContainer(ctx, path), ports.ErrNotFound)

	assert.Equal(t, []string{
		"create-keychain", "set-keychain-settings", "unlock-keychain",
		"import", "set-key-partition-list", "import", "delete-keychain",
	}, script.Subcommands())

	calls := script.Calls()
	assert.Equal(t, []string{"set-keychain-settings", "-lut", "3600", path}, calls[1].Args)
	assert.Contains(t, calls[3].Args, "-P")
	assert.NotContains(t, calls[5].Args, "-P", "certificates have no password")
	assert.Equal(t, path, calls[4].Args[len(calls[4].Args)-1])
	for _, c := range calls {
		assert.NotContains(t, c.Args, "list-keychains", "search list must stay untouched")
		assert.NotContains(t, c.Args, "default-keychain")
		assert.NotContains(t, c.String(), "p12pw")
	}
}

func TestSecurityCLI_ImportFailureNamesFile(t *testing.T) {
	t.Parallel()
	script := &toolexec.Script{Handle: func(cmd toolexec.Command) (toolexec.Result, error) {
		if cmd.Args[0] == "import" {
			return toolexec.Result{}, &toolexec.ExitError{Command: cmd.String(), Code: 1, Stderr: "MAC verification failed"}
		}
		return toolexec.Result{}, nil
	}}
	s := keychain.NewSecurityCLI(script, 0, nil)
	err := s.ImportIdentity(context.Background(), "/tmp/run.keychain-db", "/certs/CERT9.p12", "bad")
	assert.ErrorContains(t, err, "CERT9.p12")
	assert.ErrorContains(t, err, "MAC verification failed")
}

func TestSecurityCLI_ToolMissing(t *testing.T) {
	t.Parallel()
	script := &toolexec.Script{Handle: func(toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{}, ports.ErrToolUnavailable
	}}
	s := keychain.NewSecurityCLI(script, 0, nil)
	err := s.CreateContainer(context.Background(), filepath.Join(t.TempDir(), "k"), "pw")
	assert.ErrorIs(t, err, ports.ErrToolUnavailable)
}
