package app

import (
	"context"
	"errors"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// Init prepares the team directory, installs the API key and writes the
// deployment config. An explicit container password is stored for later runs.
func (p *Pipeline) Init(ctx context.Context, req InitRequest) (ports.DeploymentConfig, error) {
	if err := validateRequest(req); err != nil {
		return ports.DeploymentConfig{}, err
	}
	team, app, err := parseTarget(req.TeamID, req.AppIdentifier)
	if err != nil {
		return ports.DeploymentConfig{}, err
	}
	if req.MarketingVersion != "" {
		if _, err := domain.ParseMarketingVersion(req.MarketingVersion); err != nil {
			return ports.DeploymentConfig{}, errors.Join(ErrInvalidRequest, err)
		}
	}

	if err := p.Files.Init(team); err != nil {
		return ports.DeploymentConfig{}, err
	}
	if req.APIKeyFile != "" {
		path, err := p.Files.InstallAPIKey(team, req.APIKeyFile)
		if err != nil {
			return ports.DeploymentConfig{}, err
		}
		p.Logger.Info("api key installed", "team", team, "path", path)
	}

	cfg, err := p.Files.LoadConfig(team)
	if err != nil {
		return ports.DeploymentConfig{}, err
	}
	cfg.TeamID = string(team)
	cfg.AppIdentifier = app.String()
	cfg.Scheme = orDefault(req.Scheme, cfg.Scheme)
	cfg.MarketingVersion = orDefault(req.MarketingVersion, cfg.MarketingVersion)
	c := req.Credentials.merged(cfg)
	cfg.APIKeyID, cfg.APIIssuerID, cfg.AppleID = c.APIKeyID, c.APIIssuerID, c.AppleID
	if err := p.Files.SaveConfig(team, cfg); err != nil {
		return ports.DeploymentConfig{}, err
	}

	if req.KeychainPassword != "" && p.Passwords != nil {
		if err := p.Passwords.StorePassword(team, req.KeychainPassword); err != nil {
			p.Logger.Warn("storing container password", "team", team, "error", err)
		}
	}
	return cfg, nil
}
