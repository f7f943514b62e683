package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides overrides config values with SIGNET_* environment variables.
// Returns error for invalid values to fail fast.
func applyEnvOverrides(cfg *FileConfig) error {
	str := map[string]*string{
		"SIGNET_APPLE_INFO_DIR":        &cfg.AppleInfoDir,
		"SIGNET_KEYCHAIN_DIR":          &cfg.Keychain.Dir,
		"SIGNET_KEYCHAIN_BACKEND":      &cfg.Keychain.Backend,
		"SIGNET_REMOTE_BACKEND":        &cfg.Remote.Backend,
		"SIGNET_REMOTE_BASE_URL":       &cfg.Remote.BaseURL,
		"SIGNET_REMOTE_TIMEOUT":        &cfg.Remote.Timeout,
		"SIGNET_BUILD_TOOL":            &cfg.Build.Tool,
		"SIGNET_BUILD_OUTPUT_DIR":      &cfg.Build.OutputDir,
		"SIGNET_MONITOR_MAX_WAIT":      &cfg.Monitor.MaxWait,
		"SIGNET_MONITOR_POLL_INTERVAL": &cfg.Monitor.PollInterval,
		"SIGNET_RUN_TIMEOUT":           &cfg.Run.Timeout,
		"SIGNET_LOG_LEVEL":             &cfg.Log.Level,
		"SIGNET_LOG_FORMAT":            &cfg.Log.Format,
		"SIGNET_METRICS_TEXTFILE":      &cfg.Metrics.Textfile,
		"SIGNET_STATE_PATH":            &cfg.State.Path,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SIGNET_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SIGNET_RETRY_ATTEMPTS %q: %w", v, err)
		}
		cfg.Retry.Attempts = n
	}
	if v := os.Getenv("SIGNET_UPLOAD_STRATEGIES"); v != "" {
		cfg.Upload.Strategies = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Upload.Strategies = append(cfg.Upload.Strategies, s)
			}
		}
	}
	if v := os.Getenv("SIGNET_ALLOW_BUILD_CONFLICTS"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SIGNET_ALLOW_BUILD_CONFLICTS %q: %w", v, err)
		}
		cfg.Versioning.AllowConflicts = b
	}
	return nil
}

// parseBool parses boolean environment variables
// Accepts: "true", "1", "yes", "on" for true; "false", "0", "no", "off" for false
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s", value)
}
