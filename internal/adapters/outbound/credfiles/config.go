package credfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// config.env keys managed by signet.
const (
	KeyTeamID           = "TEAM_ID"
	KeyAppIdentifier    = "APP_IDENTIFIER"
	KeyAppleID          = "APPLE_ID"
	KeyAPIKeyID         = "API_KEY_ID"
	KeyAPIIssuerID      = "API_ISSUER_ID"
	KeyScheme           = "SCHEME"
	KeyMarketingVersion = "MARKETING_VERSION"
	KeyBuildNumber      = "BUILD_NUMBER"
	KeyLastVersion      = "LAST_DEPLOYED_VERSION"
	KeyLastBuild        = "LAST_DEPLOYED_BUILD"
	KeyLastDeployedAt   = "LAST_DEPLOYED_AT"
	KeyAPICreatedCerts  = "API_CREATED_CERTIFICATE_IDS"
)

func (f *Files) configPath(team domain.TeamID) string {
	return filepath.Join(f.TeamDir(team), configFile)
}

// LoadConfig reads config.env. A missing file yields an empty config.
func (f *Files) LoadConfig(team domain.TeamID) (ports.DeploymentConfig, error) {
	env, err := godotenv.Read(f.configPath(team))
	if errors.Is(err, fs.ErrNotExist) {
		return ports.DeploymentConfig{Extra: map[string]string{}}, nil
	}
	if err != nil {
		return ports.DeploymentConfig{}, fmt.Errorf("credfiles: read config.env: %w", err)
	}

	take := func(k string) string {
		v := env[k]
		delete(env, k)
		return v
	}
	cfg := ports.DeploymentConfig{
		TeamID:              take(KeyTeamID),
		AppIdentifier:       take(KeyAppIdentifier),
		AppleID:             take(KeyAppleID),
		APIKeyID:            take(KeyAPIKeyID),
		APIIssuerID:         take(KeyAPIIssuerID),
		Scheme:              take(KeyScheme),
		MarketingVersion:    take(KeyMarketingVersion),
		BuildNumber:         take(KeyBuildNumber),
		LastDeployedVersion: take(KeyLastVersion),
		LastDeployedBuild:   take(KeyLastBuild),
		LastDeployedAt:      take(KeyLastDeployedAt),
	}
	for _, id := range strings.Split(take(KeyAPICreatedCerts), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.APICreatedCertificateIDs = append(cfg.APICreatedCertificateIDs, id)
		}
	}
	cfg.Extra = env
	return cfg, nil
}

// SaveConfig writes config.env, keeping unknown keys.
func (f *Files) SaveConfig(team domain.TeamID, cfg ports.DeploymentConfig) error {
	env := make(map[string]string, len(cfg.Extra)+12)
	for k, v := range cfg.Extra {
		env[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			env[k] = v
		}
	}
	set(KeyTeamID, cfg.TeamID)
	set(KeyAppIdentifier, cfg.AppIdentifier)
	set(KeyAppleID, cfg.AppleID)
	set(KeyAPIKeyID, cfg.APIKeyID)
	set(KeyAPIIssuerID, cfg.APIIssuerID)
	set(KeyScheme, cfg.Scheme)
	set(KeyMarketingVersion, cfg.MarketingVersion)
	set(KeyBuildNumber, cfg.BuildNumber)
	set(KeyLastVersion, cfg.LastDeployedVersion)
	set(KeyLastBuild, cfg.LastDeployedBuild)
	set(KeyLastDeployedAt, cfg.LastDeployedAt)
	set(KeyAPICreatedCerts, strings.Join(cfg.APICreatedCertificateIDs, ","))

	if err := f.Init(team); err != nil {
		return err
	}
	if err := godotenv.Write(env, f.configPath(team)); err != nil {
		return fmt.Errorf("credfiles: write config.env: %w", err)
	}
	return nil
}
