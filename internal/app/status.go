package app

import (
	"context"
	"errors"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// StatusReport summarizes a team's signing and release state.
type StatusReport struct {
	TeamID        domain.TeamID
	App           string
	Config        ports.DeploymentConfig
	Certificates  map[domain.CertificateKind][]domain.Certificate
	Profiles      []domain.ProvisioningProfile
	Deployments   []domain.DeploymentRecord
	HighWaterMark domain.BuildNumber
	Strategies    []ports.StrategyStat
	AuditTail     []string

	// Remote is set when the report includes a fresh remote listing.
	Remote bool
	// RemoteError explains why the remote listing is missing.
	RemoteError string
}

// StatusRequest selects a team. With Remote the certificate and profile
// listings are refreshed from the remote service.
type StatusRequest struct {
	TeamID      string
	Remote      bool
	Deployments int
	AuditLines  int
}

// Status reports certificates (with quota use), profiles, recent
// deployments and the build high-water mark. Remote failures are reported
// in the result, not returned.
func (p *Pipeline) Status(ctx context.Context, req StatusRequest) (StatusReport, error) {
	team, err := domain.ParseTeamID(req.TeamID)
	if err != nil {
		return StatusReport{}, errors.Join(ErrInvalidRequest, err)
	}
	cfg, err := p.Files.LoadConfig(team)
	if err != nil {
		return StatusReport{}, err
	}
	rep := StatusReport{TeamID: team, App: cfg.AppIdentifier, Config: cfg, Certificates: make(map[domain.CertificateKind][]domain.Certificate)}

	app, _ := domain.ParseAppIdentifier(cfg.AppIdentifier)
	r := p.newRun(team, app, func() {})
	if req.Remote {
		if err := p.refresh(ctx, r, cfg); err != nil {
			rep.RemoteError = err.Error()
			r.env.Logger.Warn("remote status unavailable", "error", err)
		} else {
			rep.Remote = true
		}
	}

	for _, k := range domain.CertificateKinds {
		rep.Certificates[k] = p.store.Certificates(team, k)
	}
	if rep.Remote {
		rep.Profiles = p.store.Profiles(team)
	} else if rep.Profiles, err = p.Files.LocalProfiles(team); err != nil {
		r.env.Logger.Warn("reading installed profiles", "error", err)
	}

	if p.State != nil {
		limit := req.Deployments
		if limit <= 0 {
			limit = 10
		}
		if rep.Deployments, err = p.State.RecentDeployments(ctx, team, limit); err != nil {
			r.env.Logger.Warn("reading deployment history", "error", err)
		}
		if !app.IsZero() {
			if rep.HighWaterMark, err = p.State.HighWaterMark(ctx, team, app); err != nil {
				r.env.Logger.Warn("reading build high-water mark", "error", err)
			}
		}
		if rep.Strategies, err = p.State.StrategyStats(ctx); err != nil {
			r.env.Logger.Warn("reading upload strategy stats", "error", err)
		}
	}

	if path := p.auditPath(team); path != "" && req.AuditLines > 0 {
		sink, err := audit.NewFileSink(path)
		if err == nil {
			rep.AuditTail, err = sink.Tail(req.AuditLines)
		}
		if err != nil {
			r.env.Logger.Warn("reading audit log", "error", err)
		}
	}
	return rep, nil
}

func (p *Pipeline) refresh(ctx context.Context, r *run, cfg ports.DeploymentConfig) error {
	creds := Credentials{APIKeyID: cfg.APIKeyID, APIIssuerID: cfg.APIIssuerID, AppleID: cfg.AppleID}
	if err := validateRequest(creds); err != nil {
		return err
	}
	_, remote, err := p.remote(ctx, r.team, creds)
	if err != nil {
		return err
	}
	certs := NewCertificateManager(p.store, remote, p.Files, r.keychain, p.locks, p.NewKey, r.env)
	for _, k := range domain.CertificateKinds {
		if err := certs.Refresh(ctx, r.team, k); err != nil {
			return err
		}
	}
	return NewProfileManager(p.store, remote, p.Files, p.locks, r.env).Refresh(ctx, r.team)
}

// SetupResult is the outcome of Pipeline.SetupCertificates.
type SetupResult struct {
	RunID   string
	Signing SigningMaterial
}

// SetupCertificates ensures development and distribution certificates and
// the development and app store profiles exist, without building.
func (p *Pipeline) SetupCertificates(ctx context.Context, req SetupRequest) (SetupResult, error) {
	team, err := domain.ParseTeamID(req.TeamID)
	if err != nil {
		return SetupResult{}, errors.Join(ErrInvalidRequest, err)
	}
	cfg, err := p.Files.LoadConfig(team)
	if err != nil {
		return SetupResult{}, err
	}
	req.TeamID = string(team)
	req = req.merged(cfg)
	if err := validateRequest(req); err != nil {
		return SetupResult{}, err
	}
	_, app, err := parseTarget(req.TeamID, req.AppIdentifier)
	if err != nil {
		return SetupResult{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := p.newRun(team, app, cancel)
	res := SetupResult{RunID: r.id}

	_, remote, err := p.remote(ctx, team, req.Credentials)
	if err != nil {
		return res, err
	}
	password, err := p.password(team, req.KeychainPassword)
	if err != nil {
		return res, err
	}
	err = p.withContainer(ctx, r, password, func(h *ContainerHandle) error {
		var err error
		res.Signing, err = p.signingMaterial(ctx, r, remote, h, password, domain.ProfileAppStore)
		return err
	})
	return res, err
}
