package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "signet.yaml"

// Load reads a signet configuration file, applies SIGNET_* environment
// overrides and defaults, validates the result and converts it to Settings.
// A missing file at DefaultPath is not an error; a missing explicit path is.
func Load(path string) (Settings, error) {
	cfg, err := readFile(path)
	if err != nil {
		return Settings{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Settings{}, err
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Settings{}, err
	}
	return ToSettings(cfg)
}

func readFile(path string) (FileConfig, error) {
	var cfg FileConfig
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	// Clean the path to prevent directory traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - Config file path is trusted (from admin/user)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
