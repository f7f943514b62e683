package config

import (
	"fmt"
	"time"
)

// Settings is the parsed, defaulted configuration handed to app.Bootstrap.
type Settings struct {
	AppleInfoDir string

	KeychainDir     string
	KeychainBackend string

	RemoteBackend string
	RemoteBaseURL string
	RemoteTimeout time.Duration

	RetryAttempts        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	UploadStrategies []string
	UploadAttempts   int
	UploadRerank     bool

	BuildTool          string
	BuildOutputDir     string
	BuildConfiguration string
	BuildWorkspace     string
	BuildProject       string

	MonitorMaxWait         time.Duration
	MonitorPollInterval    time.Duration
	MonitorEnhancedMaxWait time.Duration
	MonitorMaxPollErrors   int

	RunTimeout time.Duration

	AllowBuildConflicts bool

	LogLevel  string
	LogFormat string

	MetricsTextfile string
	StatePath       string
}

// ToSettings converts a validated FileConfig.
func ToSettings(cfg FileConfig) (Settings, error) {
	parse := func(name, v string) (time.Duration, error) {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		return d, nil
	}

	var (
		s   Settings
		err error
	)
	if s.RemoteTimeout, err = parse("remote.timeout", cfg.Remote.Timeout); err != nil {
		return Settings{}, err
	}
	if s.RetryInitialInterval, err = parse("retry.initial_interval", cfg.Retry.InitialInterval); err != nil {
		return Settings{}, err
	}
	if s.RetryMaxInterval, err = parse("retry.max_interval", cfg.Retry.MaxInterval); err != nil {
		return Settings{}, err
	}
	if s.MonitorMaxWait, err = parse("monitor.max_wait", cfg.Monitor.MaxWait); err != nil {
		return Settings{}, err
	}
	if s.MonitorPollInterval, err = parse("monitor.poll_interval", cfg.Monitor.PollInterval); err != nil {
		return Settings{}, err
	}
	if s.MonitorEnhancedMaxWait, err = parse("monitor.enhanced_max_wait", cfg.Monitor.EnhancedMaxWait); err != nil {
		return Settings{}, err
	}
	if s.RunTimeout, err = parse("run.timeout", cfg.Run.Timeout); err != nil {
		return Settings{}, err
	}

	s.AppleInfoDir = cfg.AppleInfoDir
	s.KeychainDir = cfg.Keychain.Dir
	s.KeychainBackend = cfg.Keychain.Backend
	s.RemoteBackend = cfg.Remote.Backend
	s.RemoteBaseURL = cfg.Remote.BaseURL
	s.RetryAttempts = cfg.Retry.Attempts
	s.UploadStrategies = append([]string(nil), cfg.Upload.Strategies...)
	s.UploadAttempts = cfg.Upload.Attempts
	s.UploadRerank = cfg.Upload.Rerank == nil || *cfg.Upload.Rerank
	s.BuildTool = cfg.Build.Tool
	s.BuildOutputDir = cfg.Build.OutputDir
	s.BuildConfiguration = cfg.Build.Configuration
	s.BuildWorkspace = cfg.Build.Workspace
	s.BuildProject = cfg.Build.Project
	s.MonitorMaxPollErrors = cfg.Monitor.MaxPollErrors
	s.AllowBuildConflicts = cfg.Versioning.AllowConflicts
	s.LogLevel = cfg.Log.Level
	s.LogFormat = cfg.Log.Format
	s.MetricsTextfile = cfg.Metrics.Textfile
	s.StatePath = cfg.State.Path
	return s, nil
}
