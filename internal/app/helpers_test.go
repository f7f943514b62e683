package app_test

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/sufield/signet/internal/adapters/outbound/credfiles"
	"github.com/sufield/signet/internal/adapters/outbound/inmemory"
	"github.com/sufield/signet/internal/app"
	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
	"github.com/sufield/signet/internal/shutdown"
)

const (
	team     = domain.TeamID("ABCDE12345")
	password = "correct horse battery staple"
)

var (
	appID = domain.MustAppIdentifier("com.acme.app")
	epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func fastRetry() retry.Policy {
	return retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

// ecKeys keeps key generation fast in tests.
func ecKeys() (crypto.Signer, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// fixture wires managers onto in-memory adapters and a fake clock.
type fixture struct {
	t        *testing.T
	clock    *clocktesting.FakeClock
	remote   *inmemory.Remote
	security *inmemory.Security
	files    *credfiles.Files
	hooks    *shutdown.Hooks
	audit    *audit.Log
	store    *domain.CredentialStore
	locks    *app.TeamLocks
	env      app.Env
	keychain *app.KeychainManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clocktesting.NewFakeClock(epoch)
	remote, err := inmemory.NewRemote(fc)
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		clock:    fc,
		remote:   remote,
		security: inmemory.NewSecurity(),
		files:    credfiles.New(filepath.Join(t.TempDir(), "apple_info")),
		hooks:    shutdown.New(),
		audit:    audit.New(fc, nil),
		store:    domain.NewCredentialStore(),
		locks:    app.NewTeamLocks(),
	}
	f.env = app.Env{Clock: fc, Audit: f.audit, Retry: fastRetry()}
	f.keychain = app.NewKeychainManager(filepath.Join(t.TempDir(), "keychains"), f.security, f.hooks, f.env)
	require.NoError(t, f.files.Init(team))
	return f
}

func (f *fixture) certificates() *app.CertificateManager {
	return app.NewCertificateManager(f.store, f.remote, f.files, f.keychain, f.locks, ecKeys, f.env)
}

func (f *fixture) profiles() *app.ProfileManager {
	return app.NewProfileManager(f.store, f.remote, f.files, f.locks, f.env)
}

func (f *fixture) acquire() *app.ContainerHandle {
	f.t.Helper()
	h, err := f.keychain.Acquire(context.Background(), "test", password)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = f.keychain.Release(context.Background(), h) })
	return h
}

func (f *fixture) certificate(id string, kind domain.CertificateKind, issued time.Time, origin domain.CertificateOrigin) domain.Certificate {
	f.t.Helper()
	c, err := domain.NewCertificate(id, kind, team, issued, issued.Add(365*24*time.Hour), origin)
	require.NoError(f.t, err)
	return c
}

func statuses(events []audit.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Status)
	}
	return out
}

// drive steps fc whenever something waits on it until fn returns.
func drive(fc *clocktesting.FakeClock, step time.Duration, fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		if fc.HasWaiters() {
			fc.Step(step)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

var (
	_ ports.RemoteService   = (*inmemory.Remote)(nil)
	_ ports.CredentialFiles = (*credfiles.Files)(nil)
)
