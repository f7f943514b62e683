package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Default values
const (
	DefaultAppleInfoDir      = "apple_info"
	DefaultRemoteBaseURL     = "https://api.appstoreconnect.apple.com"
	DefaultRemoteTimeout     = "30s"
	DefaultRetryAttempts     = 3
	DefaultRetryInitial      = "1s"
	DefaultRetryMax          = "10s"
	DefaultUploadAttempts    = 2
	DefaultBuildOutputDir    = "build"
	DefaultConfiguration     = "Release"
	DefaultMaxWait           = "15m"
	DefaultPollInterval      = "30s"
	DefaultEnhancedMaxWait   = "60m"
	DefaultMaxPollErrors     = 3
	DefaultRunTimeout        = "3h"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultStateDatabaseName = "signet.db"
)

// DefaultUploadStrategies is the preferred order when none is configured.
var DefaultUploadStrategies = []string{"altool", "transporter", "api"}

// applyDefaults sets default values for unspecified configuration
func applyDefaults(cfg *FileConfig) {
	if cfg.AppleInfoDir == "" {
		cfg.AppleInfoDir = DefaultAppleInfoDir
	}

	if cfg.Keychain.Dir == "" {
		cfg.Keychain.Dir = filepath.Join(os.TempDir(), "signet")
	}
	if cfg.Keychain.Backend == "" {
		cfg.Keychain.Backend = "directory"
		if runtime.GOOS == "darwin" {
			cfg.Keychain.Backend = "security"
		}
	}

	if cfg.Remote.Backend == "" {
		cfg.Remote.Backend = "connect"
	}
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = DefaultRemoteBaseURL
	}
	if cfg.Remote.Timeout == "" {
		cfg.Remote.Timeout = DefaultRemoteTimeout
	}

	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = DefaultRetryAttempts
	}
	if cfg.Retry.InitialInterval == "" {
		cfg.Retry.InitialInterval = DefaultRetryInitial
	}
	if cfg.Retry.MaxInterval == "" {
		cfg.Retry.MaxInterval = DefaultRetryMax
	}

	if len(cfg.Upload.Strategies) == 0 {
		cfg.Upload.Strategies = append([]string(nil), DefaultUploadStrategies...)
	}
	if cfg.Upload.Attempts == 0 {
		cfg.Upload.Attempts = DefaultUploadAttempts
	}
	if cfg.Upload.Rerank == nil {
		rerank := true
		cfg.Upload.Rerank = &rerank
	}

	if cfg.Build.Tool == "" {
		cfg.Build.Tool = "xcode"
	}
	if cfg.Build.OutputDir == "" {
		cfg.Build.OutputDir = DefaultBuildOutputDir
	}
	if cfg.Build.Configuration == "" {
		cfg.Build.Configuration = DefaultConfiguration
	}

	if cfg.Monitor.MaxWait == "" {
		cfg.Monitor.MaxWait = DefaultMaxWait
	}
	if cfg.Monitor.PollInterval == "" {
		cfg.Monitor.PollInterval = DefaultPollInterval
	}
	if cfg.Monitor.EnhancedMaxWait == "" {
		cfg.Monitor.EnhancedMaxWait = DefaultEnhancedMaxWait
	}
	if cfg.Monitor.MaxPollErrors == 0 {
		cfg.Monitor.MaxPollErrors = DefaultMaxPollErrors
	}
	if cfg.Run.Timeout == "" {
		cfg.Run.Timeout = DefaultRunTimeout
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(cfg.AppleInfoDir, DefaultStateDatabaseName)
	}
}
