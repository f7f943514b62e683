package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
)

// ProfileRequest asks for a profile able to sign App as Kind with one of
// Certificates.
type ProfileRequest struct {
	TeamID       domain.TeamID
	App          domain.AppIdentifier
	Kind         domain.ProfileKind
	Certificates []domain.Certificate
}

// ProfileResult is the profile chosen for a request.
type ProfileResult struct {
	Profile domain.ProvisioningProfile
	Created bool
}

// ProfileManager reuses a matching provisioning profile when one exists and
// creates one otherwise.
type ProfileManager struct {
	store *domain.CredentialStore
	api   ports.ProfileAPI
	files ports.CredentialFiles
	locks *TeamLocks
	env   Env
}

// NewProfileManager wires a manager.
func NewProfileManager(store *domain.CredentialStore, api ports.ProfileAPI, files ports.CredentialFiles, locks *TeamLocks, env Env) *ProfileManager {
	if locks == nil {
		locks = NewTeamLocks()
	}
	return &ProfileManager{store: store, api: api, files: files, locks: locks, env: env.withDefaults()}
}

// EnsureValid returns a usable installed profile, preferring exact app
// identifiers over wildcards and the latest expiration among equals.
func (m *ProfileManager) EnsureValid(ctx context.Context, req ProfileRequest) (ProfileResult, error) {
	const op = "ensure provisioning profile"
	if err := req.Kind.Validate(); err != nil {
		return ProfileResult{}, domain.NewError(domain.ErrProvisioningProfileCreation, op, err)
	}
	if req.App.IsZero() || req.App.IsWildcard() {
		return ProfileResult{}, domain.NewError(domain.ErrProvisioningProfileCreation, op,
			fmt.Errorf("%w: %q is not a concrete app", domain.ErrInvalidAppIdentifier, req.App))
	}
	unlock := m.locks.Lock(req.TeamID)
	defer unlock()

	if err := m.Refresh(ctx, req.TeamID); err != nil {
		return ProfileResult{}, err
	}

	now := m.env.Clock.Now()
	if usable := m.store.UsableProfiles(req.TeamID, req.App, req.Kind, req.Certificates, now); len(usable) > 0 {
		p, err := m.install(req.TeamID, usable[0])
		if err != nil {
			return ProfileResult{}, domain.NewError(domain.ErrProvisioningProfileCreation, "install profile", err)
		}
		m.env.Metrics.Profile(req.Kind.String(), "reused")
		m.env.Audit.Record(audit.Event{
			Kind:   audit.KindProfileReused,
			App:    req.App.String(),
			Status: "REUSED",
			Detail: map[string]string{"profile": p.Name, "uuid": p.UUID, "kind": req.Kind.String(), "app_id": p.AppIdentifier.String()},
		})
		return ProfileResult{Profile: p}, nil
	}

	p, err := m.create(ctx, req)
	if err != nil {
		return ProfileResult{}, err
	}
	return ProfileResult{Profile: p, Created: true}, nil
}

// Refresh merges the remote listing with locally installed profiles. A
// transient remote failure degrades to the local view; rejected credentials
// fail the call.
func (m *ProfileManager) Refresh(ctx context.Context, team domain.TeamID) error {
	local, err := m.files.LocalProfiles(team)
	if err != nil {
		m.env.Logger.Warn("reading installed profiles", "team", team, "error", err)
	}
	byKey := make(map[string]domain.ProvisioningProfile, len(local))
	for _, p := range local {
		byKey[p.Key()] = p
	}

	remote, err := retry.DoValue(ctx, m.env.Retry, func(ctx context.Context) ([]domain.ProvisioningProfile, error) {
		return m.api.ListProfiles(ctx, team)
	})
	switch {
	case errors.Is(err, ports.ErrUnauthorized):
		return remoteError(domain.ErrProvisioningProfileCreation, "list profiles", err)
	case err != nil:
		m.env.Logger.Warn("remote profile listing failed, using installed profiles", "team", team, "error", err)
		for _, p := range local {
			m.store.PutProfile(p)
		}
		return nil
	}

	seen := make(map[string]bool, len(remote)+len(local))
	for _, p := range remote {
		if l, ok := byKey[p.Key()]; ok {
			p = p.WithPath(l.Path)
			if len(p.Content) == 0 {
				p.Content = l.Content
			}
		}
		m.store.PutProfile(p)
		seen[p.Key()] = true
	}
	for _, p := range local {
		if !seen[p.Key()] {
			m.store.PutProfile(p)
			seen[p.Key()] = true
		}
	}
	for _, p := range m.store.Profiles(team) {
		if !seen[p.Key()] {
			m.store.RemoveProfile(team, p.Key())
		}
	}
	return nil
}

func (m *ProfileManager) install(team domain.TeamID, p domain.ProvisioningProfile) (domain.ProvisioningProfile, error) {
	if p.Path != "" {
		return p, nil
	}
	path, err := m.files.SaveProfile(team, p)
	if err != nil {
		return p, err
	}
	p = p.WithPath(path)
	m.store.PutProfile(p)
	return p, nil
}

func (m *ProfileManager) create(ctx context.Context, req ProfileRequest) (domain.ProvisioningProfile, error) {
	const op = "create provisioning profile"
	fail := func(err error) (domain.ProvisioningProfile, error) {
		return domain.ProvisioningProfile{}, remoteError(domain.ErrProvisioningProfileCreation, op, err)
	}

	err := retry.Do(ctx, m.env.Retry, func(ctx context.Context) error {
		return m.api.EnsureAppIdentifier(ctx, req.TeamID, req.App)
	})
	if err != nil {
		return fail(fmt.Errorf("register %s: %w", req.App, err))
	}

	var devices []string
	if req.Kind.RequiresDevices() {
		devices, err = retry.DoValue(ctx, m.env.Retry, func(ctx context.Context) ([]string, error) {
			return m.api.ListDevices(ctx, req.TeamID)
		})
		if err != nil {
			return fail(fmt.Errorf("list devices: %w", err))
		}
		if len(devices) == 0 {
			return fail(fmt.Errorf("%s profiles need at least one registered device", req.Kind))
		}
	}

	now := m.env.Clock.Now()
	cert, ok := newestValid(req.Certificates, req.Kind.CertificateKind(), now)
	if !ok {
		return fail(fmt.Errorf("no valid %s certificate to bind", req.Kind.CertificateKind()))
	}

	p, err := retry.DoValue(ctx, m.env.Retry, func(ctx context.Context) (domain.ProvisioningProfile, error) {
		return m.api.CreateProfile(ctx, ports.ProfileRequest{
			Name:           fmt.Sprintf("signet %s %s %s", req.App, req.Kind, now.UTC().Format("20060102T150405")),
			Kind:           req.Kind,
			TeamID:         req.TeamID,
			AppIdentifier:  req.App,
			CertificateIDs: []string{cert.ID},
			DeviceIDs:      devices,
		})
	})
	if err != nil {
		return fail(err)
	}

	path, err := m.files.SaveProfile(req.TeamID, p)
	if err != nil {
		return domain.ProvisioningProfile{}, domain.NewError(domain.ErrProvisioningProfileCreation, "install profile", err)
	}
	p = p.WithPath(path)
	m.store.PutProfile(p)

	m.env.Metrics.Profile(req.Kind.String(), "created")
	m.env.Audit.Record(audit.Event{
		Kind:   audit.KindProfileCreated,
		App:    req.App.String(),
		Status: "CREATED",
		Detail: map[string]string{"profile": p.Name, "uuid": p.UUID, "certificate": cert.ID, "fresh": "true"},
	})
	m.env.Logger.Info("provisioning profile created", "name", p.Name, "kind", req.Kind)
	return p, nil
}

func newestValid(certs []domain.Certificate, kind domain.CertificateKind, now time.Time) (domain.Certificate, bool) {
	var best domain.Certificate
	found := false
	for _, c := range certs {
		if c.Kind != kind || c.IsExpired(now) {
			continue
		}
		if !found || c.IssuedAt.After(best.IssuedAt) {
			best, found = c, true
		}
	}
	return best, found
}
