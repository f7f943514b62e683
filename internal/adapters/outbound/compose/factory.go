package compose

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/adapters/outbound/connectapi"
	"github.com/sufield/signet/internal/adapters/outbound/credfiles"
	"github.com/sufield/signet/internal/adapters/outbound/inmemory"
	"github.com/sufield/signet/internal/adapters/outbound/ipa"
	"github.com/sufield/signet/internal/adapters/outbound/keychain"
	"github.com/sufield/signet/internal/adapters/outbound/keyring"
	"github.com/sufield/signet/internal/adapters/outbound/sqlite"
	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/adapters/outbound/uploader"
	"github.com/sufield/signet/internal/adapters/outbound/xcode"
	"github.com/sufield/signet/internal/config"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/ports"
)

// Backend names accepted in config.Settings.
const (
	RemoteConnect     = "connect"
	RemoteInMemory    = "inmemory"
	KeychainSecurity  = "security"
	KeychainDirectory = "directory"
	BuildXcode        = "xcode"
	BuildInMemory     = "inmemory"
)

// keychainLockTimeout bounds how long an abandoned container stays unlocked.
const keychainLockTimeout = 2 * time.Hour

// Factory creates outbound adapters from settings.
type Factory struct {
	settings config.Settings
	logger   *slog.Logger
	clock    clock.Clock

	// Runner executes external tools. Tests replace it with a script.
	Runner toolexec.Runner
	// Passwords overrides the OS keyring.
	Passwords ports.PasswordSource

	once   sync.Once
	remote *inmemory.Remote
	err    error
}

// NewFactory returns a factory. clk defaults to the real clock.
func NewFactory(s config.Settings, logger *slog.Logger, clk clock.Clock) *Factory {
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger = logging.OrDiscard(logger)
	return &Factory{
		settings: s,
		logger:   logger,
		clock:    clk,
		Runner:   toolexec.OS{Logger: logger},
	}
}

// Clock returns the clock adapters were built with.
func (f *Factory) Clock() clock.Clock { return f.clock }

// InMemoryRemote returns the shared in-memory remote service, creating it
// on first use.
func (f *Factory) InMemoryRemote() (*inmemory.Remote, error) {
	f.once.Do(func() {
		f.remote, f.err = inmemory.NewRemote(f.clock)
	})
	return f.remote, f.err
}

func (f *Factory) CreateCredentialFiles() ports.CredentialFiles {
	return credfiles.New(f.settings.AppleInfoDir)
}

func (f *Factory) CreateSecurityBackend() (ports.SecurityBackend, error) {
	switch f.settings.KeychainBackend {
	case KeychainSecurity:
		return keychain.NewSecurityCLI(f.Runner, keychainLockTimeout, f.logger), nil
	case KeychainDirectory, "":
		return keychain.NewDirectory(), nil
	}
	return nil, fmt.Errorf("unknown keychain backend %q", f.settings.KeychainBackend)
}

func (f *Factory) CreateRemoteFactory() (ports.RemoteFactory, error) {
	switch f.settings.RemoteBackend {
	case RemoteConnect, "":
		return connectapi.NewFactory(f.settings.RemoteBaseURL, f.settings.RemoteTimeout, f.clock, f.logger), nil
	case RemoteInMemory:
		remote, err := f.InMemoryRemote()
		if err != nil {
			return nil, err
		}
		return func(context.Context, ports.APICredentials) (ports.RemoteService, error) {
			return remote, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown remote backend %q", f.settings.RemoteBackend)
}

func (f *Factory) CreateBuildTool() (ports.BuildTool, error) {
	switch f.settings.BuildTool {
	case BuildXcode, "":
		return xcode.New(xcode.Config{
			Workspace: f.settings.BuildWorkspace,
			Project:   f.settings.BuildProject,
		}, f.Runner, f.logger), nil
	case BuildInMemory:
		return &inmemory.BuildTool{}, nil
	}
	return nil, fmt.Errorf("unknown build tool %q", f.settings.BuildTool)
}

func (f *Factory) CreateInspector() ports.ArtifactInspector {
	return ipa.Inspector{}
}

// CreateStateStore opens the sqlite database at StatePath.
func (f *Factory) CreateStateStore(ctx context.Context) (ports.StateStore, error) {
	return sqlite.Open(ctx, f.settings.StatePath)
}

func (f *Factory) CreatePasswordSource() ports.PasswordSource {
	if f.Passwords != nil {
		return f.Passwords
	}
	return keyring.New(keyring.DefaultService)
}

var _ ports.AdapterFactory = (*Factory)(nil)

// CreateStrategies builds the configured upload strategies, in configured
// order, for each run.
func (f *Factory) CreateStrategies() (ports.StrategyFactory, error) {
	names := f.settings.UploadStrategies
	if len(names) == 0 {
		names = config.DefaultUploadStrategies
	}
	for _, name := range names {
		switch name {
		case uploader.AltoolName, uploader.TransporterName, connectapi.StrategyName:
		default:
			return nil, fmt.Errorf("unknown upload strategy %q", name)
		}
	}
	names = append([]string(nil), names...)

	return func(ctx context.Context, creds ports.APICredentials, remote ports.RemoteService) ([]ports.UploadStrategy, error) {
		out := make([]ports.UploadStrategy, 0, len(names))
		for _, name := range names {
			// Offline runs deliver every strategy into the in-memory remote.
			if mem, ok := remote.(*inmemory.Remote); ok {
				out = append(out, inmemory.NewUploader(name, mem))
				continue
			}
			switch name {
			case uploader.AltoolName:
				out = append(out, uploader.NewAltool(f.Runner, f.logger))
			case uploader.TransporterName:
				out = append(out, uploader.NewTransporter(f.Runner, f.logger))
			case connectapi.StrategyName:
				client, ok := remote.(*connectapi.Client)
				if !ok {
					f.logger.Warn("api upload strategy needs the connect remote backend, skipping")
					continue
				}
				out = append(out, client.Uploader())
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no usable upload strategy among %v", names)
		}
		return out, nil
	}, nil
}
