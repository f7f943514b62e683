package compose_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/adapters/outbound/compose"
	"github.com/sufield/signet/internal/adapters/outbound/connectapi"
	"github.com/sufield/signet/internal/adapters/outbound/inmemory"
	"github.com/sufield/signet/internal/adapters/outbound/keychain"
	"github.com/sufield/signet/internal/adapters/outbound/uploader"
	"github.com/sufield/signet/internal/adapters/outbound/xcode"
	"github.com/sufield/signet/internal/config"
	"github.com/sufield/signet/internal/ports"
)

func settings(t *testing.T) config.Settings {
	dir := t.TempDir()
	return config.Settings{
		AppleInfoDir:     dir,
		KeychainDir:      filepath.Join(dir, "keychains"),
		KeychainBackend:  compose.KeychainDirectory,
		RemoteBackend:    compose.RemoteInMemory,
		BuildTool:        compose.BuildInMemory,
		UploadStrategies: []string{"altool", "api"},
		StatePath:        filepath.Join(dir, "signet.db"),
	}
}

func names(strategies []ports.UploadStrategy) []string {
	out := make([]string, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, s.Name())
	}
	return out
}

func TestFactory_InMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := settings(t)
	f := compose.NewFactory(s, nil, nil)

	sec, err := f.CreateSecurityBackend()
	require.NoError(t, err)
	assert.IsType(t, &keychain.Directory{}, sec)

	build, err := f.CreateBuildTool()
	require.NoError(t, err)
	assert.IsType(t, &inmemory.BuildTool{}, build)

	remotes, err := f.CreateRemoteFactory()
	require.NoError(t, err)
	a, err := remotes(ctx, ports.APICredentials{})
	require.NoError(t, err)
	b, err := remotes(ctx, ports.APICredentials{})
	require.NoError(t, err)
	assert.Same(t, a, b, "offline runs share one remote")

	strategies, err := f.CreateStrategies()
	require.NoError(t, err)
	got, err := strategies(ctx, ports.APICredentials{}, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"altool", "api"}, names(got))
	assert.IsType(t, &inmemory.Uploader{}, got[0])

	store, err := f.CreateStateStore(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, s.StatePath)
}

func TestFactory_Production(t *testing.T) {
	t.Parallel()
	s := settings(t)
	s.KeychainBackend = compose.KeychainSecurity
	s.RemoteBackend = compose.RemoteConnect
	s.RemoteBaseURL = "https://example.invalid"
	s.BuildTool = compose.BuildXcode
	s.UploadStrategies = []string{"transporter", "altool", "api"}
	f := compose.NewFactory(s, nil, nil)

	sec, err := f.CreateSecurityBackend()
	require.NoError(t, err)
	assert.IsType(t, &keychain.SecurityCLI{}, sec)

	build, err := f.CreateBuildTool()
	require.NoError(t, err)
	assert.IsType(t, &xcode.Builder{}, build)

	strategies, err := f.CreateStrategies()
	require.NoError(t, err)
	client := &connectapi.Client{}
	got, err := strategies(context.Background(), ports.APICredentials{}, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"transporter", "altool", "api"}, names(got))
	assert.IsType(t, &uploader.Transporter{}, got[0])
	assert.IsType(t, &connectapi.Uploader{}, got[2])

	// Without the HTTP client the api strategy is dropped.
	mem, err := f.InMemoryRemote()
	require.NoError(t, err)
	var remote ports.RemoteService = struct{ ports.RemoteService }{mem}
	got, err = strategies(context.Background(), ports.APICredentials{}, remote)
	require.NoError(t, err)
	assert.Equal(t, []string{"transporter", "altool"}, names(got))
}

func TestFactory_RejectsUnknownBackends(t *testing.T) {
	t.Parallel()
	s := settings(t)
	s.KeychainBackend = "vault"
	s.RemoteBackend = "carrier-pigeon"
	s.BuildTool = "bazel"
	s.UploadStrategies = []string{"ftp"}
	f := compose.NewFactory(s, nil, nil)

	_, err := f.CreateSecurityBackend()
	assert.ErrorContains(t, err, "vault")
	_, err = f.CreateRemoteFactory()
	assert.ErrorContains(t, err, "carrier-pigeon")
	_, err = f.CreateBuildTool()
	assert.ErrorContains(t, err, "bazel")
	_, err = f.CreateStrategies()
	assert.ErrorContains(t, err, "ftp")
}
