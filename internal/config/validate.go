package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints (struct tags), duration syntax and
// cross-field rules.
//
// Ensures:
//   - every duration field parses and is positive; run.timeout may be 0
//   - poll_interval does not exceed max_wait
//   - upload strategies are known and not repeated
func Validate(cfg FileConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"remote.timeout", cfg.Remote.Timeout},
		{"retry.initial_interval", cfg.Retry.InitialInterval},
		{"retry.max_interval", cfg.Retry.MaxInterval},
		{"monitor.max_wait", cfg.Monitor.MaxWait},
		{"monitor.poll_interval", cfg.Monitor.PollInterval},
		{"monitor.enhanced_max_wait", cfg.Monitor.EnhancedMaxWait},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if cfg.Run.Timeout != "" {
		v, err := time.ParseDuration(cfg.Run.Timeout)
		if err != nil {
			return fmt.Errorf("invalid run.timeout %q: %w", cfg.Run.Timeout, err)
		}
		if v < 0 {
			return fmt.Errorf("run.timeout must not be negative, got %s", cfg.Run.Timeout)
		}
	}

	if cfg.Monitor.MaxWait != "" && cfg.Monitor.PollInterval != "" {
		maxWait, _ := time.ParseDuration(cfg.Monitor.MaxWait)
		poll, _ := time.ParseDuration(cfg.Monitor.PollInterval)
		if poll > maxWait {
			return fmt.Errorf("monitor.poll_interval (%s) must not exceed monitor.max_wait (%s)", poll, maxWait)
		}
	}

	seen := make(map[string]bool, len(cfg.Upload.Strategies))
	for _, s := range cfg.Upload.Strategies {
		if seen[s] {
			return fmt.Errorf("upload.strategies lists %q twice", s)
		}
		seen[s] = true
	}
	return nil
}
