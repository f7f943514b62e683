package config

// KeychainSection configures the ephemeral credential containers.
type KeychainSection struct {
	// Dir is where containers are created. Must be writable.
	// Defaults to $TMPDIR/signet.
	Dir string `yaml:"dir"`

	// Backend is "security" (macOS security tool) or "directory"
	// (portable file-based container). Defaults to security on darwin.
	Backend string `yaml:"backend" validate:"omitempty,oneof=security directory"`
}

// RemoteSection configures the remote service client.
type RemoteSection struct {
	// Backend is "connect" (HTTP API) or "inmemory" (offline dry runs).
	Backend string `yaml:"backend" validate:"omitempty,oneof=connect inmemory"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// Timeout bounds every HTTP call. Go duration format: "30s", "1m".
	Timeout string `yaml:"timeout"`
}

// RetrySection bounds retries of transient remote failures.
type RetrySection struct {
	Attempts        int    `yaml:"attempts" validate:"gte=0,lte=10"`
	InitialInterval string `yaml:"initial_interval"`
	MaxInterval     string `yaml:"max_interval"`
}

// UploadSection lists upload strategies in preferred order.
type UploadSection struct {
	Strategies []string `yaml:"strategies" validate:"dive,oneof=altool transporter api"`
	Attempts   int      `yaml:"attempts" validate:"gte=0,lte=10"`

	// Rerank reorders strategies by persisted success history.
	Rerank *bool `yaml:"rerank"`
}

// BuildSection configures the external build tool.
type BuildSection struct {
	Tool          string `yaml:"tool" validate:"omitempty,oneof=xcode inmemory"`
	OutputDir     string `yaml:"output_dir"`
	Configuration string `yaml:"configuration"`
	Workspace     string `yaml:"workspace"`
	Project       string `yaml:"project"`
}

// MonitorSection configures processing status polling.
type MonitorSection struct {
	MaxWait         string `yaml:"max_wait"`
	PollInterval    string `yaml:"poll_interval"`
	EnhancedMaxWait string `yaml:"enhanced_max_wait"`
	MaxPollErrors   int    `yaml:"max_poll_errors" validate:"gte=0"`
}

// RunSection bounds a whole deployment.
type RunSection struct {
	// Timeout cancels a run that has not finished in time; "0" disables it.
	Timeout string `yaml:"timeout"`
}

// VersioningSection controls build number conflict handling.
type VersioningSection struct {
	// AllowConflicts accepts an explicit build number at or below the
	// observed maximum by using the computed one instead, with a warning.
	AllowConflicts bool `yaml:"allow_conflicts"`
}

// LogSection configures slog output.
type LogSection struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// MetricsSection configures metric export.
type MetricsSection struct {
	// Textfile is written after every run when set.
	Textfile string `yaml:"textfile"`
}

// StateSection configures the persisted state database.
type StateSection struct {
	// Path of the sqlite database. Defaults to {apple_info_dir}/signet.db.
	Path string `yaml:"path"`
}

// FileConfig represents a signet.yaml file.
//
// The config format is versioned to support future evolution without breaking changes.
type FileConfig struct {
	Version int `yaml:"version,omitempty" validate:"gte=0,lte=1"`

	AppleInfoDir string            `yaml:"apple_info_dir"`
	Keychain     KeychainSection   `yaml:"keychain"`
	Remote       RemoteSection     `yaml:"remote"`
	Retry        RetrySection      `yaml:"retry"`
	Upload       UploadSection     `yaml:"upload"`
	Build        BuildSection      `yaml:"build"`
	Monitor      MonitorSection    `yaml:"monitor"`
	Run          RunSection        `yaml:"run"`
	Versioning   VersioningSection `yaml:"versioning"`
	Log          LogSection        `yaml:"log"`
	Metrics      MetricsSection    `yaml:"metrics"`
	State        StateSection      `yaml:"state"`
}
