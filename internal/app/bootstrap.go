package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/config"
	"github.com/sufield/signet/internal/debug"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/metrics"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
	"github.com/sufield/signet/internal/shutdown"
)

// Application is the composition root: a pipeline plus the resources it
// owns for the lifetime of the process.
type Application struct {
	Settings config.Settings
	Pipeline *Pipeline
	State    ports.StateStore
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Options carry process-wide services. Zero values fall back to the
// process defaults (shutdown.Default, debug.Faults, real clock).
type Options struct {
	Logger  *slog.Logger
	Clock   clock.Clock
	Hooks   *shutdown.Hooks
	Faults  *debug.FaultProfile
	Metrics *metrics.Metrics
}

// Bootstrap wires a Pipeline onto the adapters factory creates:
//   - opens the state store (migrations run here)
//   - builds the security, remote, build and upload adapters
//   - maps settings onto pipeline settings
//
// The caller must Close the returned Application.
func Bootstrap(ctx context.Context, s config.Settings, factory ports.AdapterFactory, opts Options) (*Application, error) {
	if factory == nil {
		return nil, fmt.Errorf("adapter factory is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.Config{Level: s.LogLevel, Format: s.LogFormat})
	}
	if opts.Hooks == nil {
		opts.Hooks = shutdown.Default
	}
	if opts.Faults == nil {
		opts.Faults = debug.Faults
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	security, err := factory.CreateSecurityBackend()
	if err != nil {
		return nil, fmt.Errorf("keychain backend: %w", err)
	}
	remote, err := factory.CreateRemoteFactory()
	if err != nil {
		return nil, fmt.Errorf("remote backend: %w", err)
	}
	strategies, err := factory.CreateStrategies()
	if err != nil {
		return nil, fmt.Errorf("upload strategies: %w", err)
	}
	tool, err := factory.CreateBuildTool()
	if err != nil {
		return nil, fmt.Errorf("build tool: %w", err)
	}
	state, err := factory.CreateStateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	p, err := NewPipeline(Deps{
		Files:      factory.CreateCredentialFiles(),
		Security:   security,
		Remote:     remote,
		Strategies: strategies,
		BuildTool:  tool,
		Inspector:  factory.CreateInspector(),
		State:      state,
		Passwords:  factory.CreatePasswordSource(),
		Hooks:      opts.Hooks,
		Faults:     opts.Faults,
		Clock:      opts.Clock,
		Logger:     logger,
		Metrics:    opts.Metrics,
		Settings:   PipelineSettings(s),
	})
	if err != nil {
		if cerr := state.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("closing state store: %w", cerr))
		}
		return nil, err
	}
	logger.Debug("bootstrapped",
		"remote", s.RemoteBackend, "keychain", s.KeychainBackend,
		"build_tool", s.BuildTool, "strategies", s.UploadStrategies, "state", s.StatePath)

	return &Application{Settings: s, Pipeline: p, State: state, Metrics: opts.Metrics, Logger: logger}, nil
}

// PipelineSettings maps file configuration onto pipeline settings. The
// per-team audit log lives next to the team's credentials.
func PipelineSettings(s config.Settings) Settings {
	return Settings{
		KeychainDir: s.KeychainDir,
		AuditDir:    s.AppleInfoDir,
		Retry: retry.Policy{
			Attempts:        s.RetryAttempts,
			InitialInterval: s.RetryInitialInterval,
			MaxInterval:     s.RetryMaxInterval,
		},
		RerankStrategies:    s.UploadRerank,
		UploadAttempts:      s.UploadAttempts,
		AllowBuildConflicts: s.AllowBuildConflicts,
		MaxWait:             s.MonitorMaxWait,
		EnhancedMaxWait:     s.MonitorEnhancedMaxWait,
		PollInterval:        s.MonitorPollInterval,
		MaxPollErrors:       s.MonitorMaxPollErrors,
		BuildOutputDir:      s.BuildOutputDir,
		MetricsTextfile:     s.MetricsTextfile,
		RunTimeout:          s.RunTimeout,
	}
}

// Close releases process resources: it runs any cleanup hooks still
// registered and closes the state store.
func (a *Application) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := a.Pipeline.Hooks.Run(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if a.State != nil {
		if err := a.State.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
