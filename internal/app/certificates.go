package app

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"slices"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
)

// KeyGenerator produces the private key for a new certificate.
type KeyGenerator func() (crypto.Signer, error)

// RSAKeys is the default KeyGenerator: RSA 2048, as accepted by the remote
// certificate service.
func RSAKeys() (crypto.Signer, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

// CertificateRequest asks for one usable certificate of Kind.
type CertificateRequest struct {
	TeamID domain.TeamID
	Kind   domain.CertificateKind

	// Container receives the certificate's identity. Nil skips import.
	Container *ContainerHandle

	// Password protects key pair files written for new certificates and
	// opens existing ones.
	Password string

	// App labels audit events.
	App string
}

// CertificateManager keeps at least one usable certificate per kind while
// never exceeding the per-kind quota.
//
// Policy, in order:
//  1. reuse the newest non-expired certificate whose private key is available
//  2. at quota, revoke exactly one certificate (api-created first, then the
//     one expiring soonest) and re-check
//  3. create a new certificate from a locally generated key
//
// A remote listing that already exceeds the quota gets the same single
// revocation before the listing is trusted.
type CertificateManager struct {
	store    *domain.CredentialStore
	api      ports.CertificateAPI
	files    ports.CredentialFiles
	keychain *KeychainManager
	locks    *TeamLocks
	newKey   KeyGenerator
	env      Env
}

// NewCertificateManager wires a manager. newKey may be nil for RSAKeys.
func NewCertificateManager(store *domain.CredentialStore, api ports.CertificateAPI, files ports.CredentialFiles,
	keychain *KeychainManager, locks *TeamLocks, newKey KeyGenerator, env Env) *CertificateManager {
	if newKey == nil {
		newKey = RSAKeys
	}
	if locks == nil {
		locks = NewTeamLocks()
	}
	return &CertificateManager{
		store:    store,
		api:      api,
		files:    files,
		keychain: keychain,
		locks:    locks,
		newKey:   newKey,
		env:      env.withDefaults(),
	}
}

// EnsureValid returns a certificate of req.Kind that is non-expired, has its
// private key available and, when req.Container is set, is imported into it.
func (m *CertificateManager) EnsureValid(ctx context.Context, req CertificateRequest) (domain.Certificate, error) {
	if err := req.Kind.Validate(); err != nil {
		return domain.Certificate{}, domain.NewError(domain.ErrInvalidCertificate, "ensure certificate", err)
	}
	unlock := m.locks.Lock(req.TeamID)
	defer unlock()

	live, err := m.listing(ctx, req.TeamID, req.Kind)
	if err != nil {
		return domain.Certificate{}, err
	}
	cleaned := false
	if err := m.replace(req.TeamID, req.Kind, live); err != nil {
		if !errors.Is(err, domain.ErrCertificateLimitExceeded) {
			return domain.Certificate{}, err
		}
		m.env.Logger.Warn("remote lists more certificates than the quota allows",
			"team", req.TeamID, "kind", req.Kind, "count", len(live))
		candidates := domain.OrderCleanupCandidates(live, m.env.Clock.Now())
		if err := m.cleanup(ctx, req, candidates); err != nil {
			return domain.Certificate{}, domain.NewError(domain.ErrCertificateLimitExceeded, "certificate cleanup", err)
		}
		if err := m.Refresh(ctx, req.TeamID, req.Kind); err != nil {
			return domain.Certificate{}, err
		}
		cleaned = true
	}
	if c, ok := m.reuse(ctx, req); ok {
		return c, nil
	}
	if m.store.AtQuota(req.TeamID, req.Kind, m.env.Clock.Now()) {
		if cleaned {
			return domain.Certificate{}, m.stillAtQuota(req)
		}
		candidates := m.store.CleanupCandidates(req.TeamID, req.Kind, m.env.Clock.Now())
		// A failed revocation is logged; creation is attempted anyway.
		if err := m.cleanup(ctx, req, candidates); err == nil {
			if err := m.Refresh(ctx, req.TeamID, req.Kind); err != nil {
				return domain.Certificate{}, err
			}
			if m.store.AtQuota(req.TeamID, req.Kind, m.env.Clock.Now()) {
				return domain.Certificate{}, m.stillAtQuota(req)
			}
		}
	}
	return m.create(ctx, req)
}

func (m *CertificateManager) stillAtQuota(req CertificateRequest) error {
	return domain.NewError(domain.ErrCertificateLimitExceeded, "certificate cleanup",
		fmt.Errorf("still %d %s certificates after one revocation", req.Kind.Quota(), req.Kind))
}

// Refresh replaces the store's view of team/kind with the remote listing,
// annotated with local key pairs and recorded origins. Expired certificates
// are revoked best effort and dropped.
func (m *CertificateManager) Refresh(ctx context.Context, team domain.TeamID, kind domain.CertificateKind) error {
	live, err := m.listing(ctx, team, kind)
	if err != nil {
		return err
	}
	return m.replace(team, kind, live)
}

func (m *CertificateManager) replace(team domain.TeamID, kind domain.CertificateKind, live []domain.Certificate) error {
	if err := m.store.ReplaceCertificates(team, kind, live, m.env.Clock.Now()); err != nil {
		return fmt.Errorf("list certificates: %w", err)
	}
	return nil
}

// listing fetches team/kind from the remote and annotates it.
func (m *CertificateManager) listing(ctx context.Context, team domain.TeamID, kind domain.CertificateKind) ([]domain.Certificate, error) {
	const op = "list certificates"
	remote, err := retry.DoValue(ctx, m.env.Retry, func(ctx context.Context) ([]domain.Certificate, error) {
		return m.api.ListCertificates(ctx, team, kind)
	})
	if err != nil {
		return nil, remoteError(domain.ErrInvalidCertificate, op, err)
	}

	cfg, err := m.files.LoadConfig(team)
	if err != nil {
		m.env.Logger.Warn("reading deployment config", "team", team, "error", err)
	}
	apiCreated := make(map[string]bool, len(cfg.APICreatedCertificateIDs))
	for _, id := range cfg.APICreatedCertificateIDs {
		apiCreated[id] = true
	}
	keys := make(map[string]string)
	pairs, err := m.files.KeyPairs(team)
	if err != nil {
		m.env.Logger.Warn("listing key pairs", "team", team, "error", err)
	}
	for _, p := range pairs {
		keys[p.CertificateID] = p.Path
	}

	now := m.env.Clock.Now()
	live := make([]domain.Certificate, 0, len(remote))
	for _, c := range remote {
		if c.IsExpired(now) {
			m.revokeExpired(ctx, c)
			continue
		}
		if path, ok := keys[c.ID]; ok {
			c = c.WithKeyRef(path)
		}
		switch {
		case apiCreated[c.ID]:
			c = c.WithOrigin(domain.OriginAPICreated)
		case c.Origin == domain.OriginAPICreated:
		case c.HasPrivateKey():
			c = c.WithOrigin(domain.OriginImported)
		}
		live = append(live, c)
	}
	return live, nil
}

func (m *CertificateManager) revokeExpired(ctx context.Context, c domain.Certificate) {
	err := m.api.RevokeCertificate(ctx, c.TeamID, c.ID)
	status := "REVOKED"
	level := audit.LevelInfo
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		status, level = "REVOKE_FAILED", audit.LevelWarn
		m.env.Logger.Warn("revoking expired certificate", "id", c.ID, "error", err)
	} else {
		m.env.Metrics.CertificateRevoked(c.Kind.String(), "expired")
	}
	m.env.Audit.Record(audit.Event{
		Level:  level,
		Kind:   audit.KindCertExpired,
		Status: status,
		Detail: map[string]string{"id": c.ID, "kind": c.Kind.String()},
	})
}

func (m *CertificateManager) reuse(ctx context.Context, req CertificateRequest) (domain.Certificate, bool) {
	now := m.env.Clock.Now()
	for _, c := range m.store.UsableCertificates(req.TeamID, req.Kind, now) {
		if req.Container != nil && !req.Container.Imported(c.KeyRef) {
			if err := m.keychain.Import(ctx, req.Container, c.KeyRef, req.Password); err != nil {
				m.env.Logger.Warn("existing certificate unusable", "id", c.ID, "error", err)
				// replacing an existing id never trips the quota
				_ = m.store.PutCertificate(c.WithKeyRef(""), now)
				continue
			}
		}
		m.env.Audit.Record(audit.Event{
			Kind:   audit.KindCertReused,
			App:    req.App,
			Status: "REUSED",
			Detail: map[string]string{"id": c.ID, "kind": c.Kind.String(), "origin": string(c.Origin)},
		})
		return c, true
	}
	return domain.Certificate{}, false
}

// cleanup revokes exactly one certificate, the first of candidates.
// Callers re-list afterwards.
func (m *CertificateManager) cleanup(ctx context.Context, req CertificateRequest, candidates []domain.Certificate) error {
	if len(candidates) == 0 {
		return errors.New("no certificate to revoke")
	}
	victim := candidates[0]

	err := retry.Do(ctx, m.env.Retry, func(ctx context.Context) error {
		return m.api.RevokeCertificate(ctx, req.TeamID, victim.ID)
	})
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		m.env.Logger.Warn("certificate cleanup failed", "id", victim.ID, "error", err)
		m.env.Audit.Record(audit.Event{
			Level:  audit.LevelWarn,
			Kind:   audit.KindCertCleanup,
			App:    req.App,
			Status: "FAILED",
			Detail: map[string]string{"id": victim.ID, "origin": string(victim.Origin), "error": err.Error()},
		})
		return err
	}

	m.store.RemoveCertificate(req.TeamID, victim.ID)
	m.forgetAPICreated(req.TeamID, victim.ID)
	m.env.Metrics.CertificateRevoked(req.Kind.String(), "quota")
	m.env.Audit.Record(audit.Event{
		Kind:   audit.KindCertCleanup,
		App:    req.App,
		Status: "REVOKED",
		Detail: map[string]string{"id": victim.ID, "origin": string(victim.Origin), "kind": req.Kind.String()},
	})
	return nil
}

func (m *CertificateManager) create(ctx context.Context, req CertificateRequest) (domain.Certificate, error) {
	const op = "create certificate"
	key, err := m.newKey()
	if err != nil {
		return domain.Certificate{}, domain.NewError(domain.ErrInvalidCertificate, op, err)
	}
	csr, err := certificateSigningRequest(key, req.TeamID, req.Kind)
	if err != nil {
		return domain.Certificate{}, domain.NewError(domain.ErrInvalidCertificate, op, err)
	}

	issued, err := retry.DoValue(ctx, m.env.Retry.WithAttempts(2), func(ctx context.Context) (ports.IssuedCertificate, error) {
		return m.api.CreateCertificate(ctx, req.TeamID, req.Kind, csr)
	})
	if err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return domain.Certificate{}, domain.NewError(domain.ErrCertificateLimitExceeded, op, err)
		}
		return domain.Certificate{}, remoteError(domain.ErrInvalidCertificate, op, err)
	}

	path, err := m.files.SaveKeyPair(req.TeamID, issued.Certificate.ID, key, issued.DER, req.Password)
	if err != nil {
		return domain.Certificate{}, domain.NewError(domain.ErrInvalidCertificate, "save key pair", err)
	}
	cert := issued.Certificate.WithKeyRef(path).WithOrigin(domain.OriginAPICreated)
	if err := m.store.PutCertificate(cert, m.env.Clock.Now()); err != nil {
		return domain.Certificate{}, fmt.Errorf("%s: %w", op, err)
	}
	m.rememberAPICreated(req.TeamID, cert.ID)

	if req.Container != nil {
		if err := m.keychain.Import(ctx, req.Container, path, req.Password); err != nil {
			return domain.Certificate{}, domain.NewError(domain.ErrInvalidCertificate, "import new certificate", err)
		}
	}

	m.env.Metrics.CertificateCreated(req.Kind.String())
	m.env.Audit.Record(audit.Event{
		Kind:   audit.KindCertCreated,
		App:    req.App,
		Status: "CREATED",
		Detail: map[string]string{"id": cert.ID, "kind": req.Kind.String()},
	})
	m.env.Logger.Info("certificate created", "id", cert.ID, "kind", req.Kind, "team", req.TeamID)
	return cert, nil
}

func (m *CertificateManager) rememberAPICreated(team domain.TeamID, id string) {
	m.updateConfig(team, func(cfg *ports.DeploymentConfig) {
		if !slices.Contains(cfg.APICreatedCertificateIDs, id) {
			cfg.APICreatedCertificateIDs = append(cfg.APICreatedCertificateIDs, id)
		}
	})
}

func (m *CertificateManager) forgetAPICreated(team domain.TeamID, id string) {
	m.updateConfig(team, func(cfg *ports.DeploymentConfig) {
		cfg.APICreatedCertificateIDs = slices.DeleteFunc(cfg.APICreatedCertificateIDs, func(s string) bool { return s == id })
	})
}

func (m *CertificateManager) updateConfig(team domain.TeamID, fn func(*ports.DeploymentConfig)) {
	cfg, err := m.files.LoadConfig(team)
	if err != nil {
		m.env.Logger.Warn("reading deployment config", "team", team, "error", err)
		return
	}
	fn(&cfg)
	if err := m.files.SaveConfig(team, cfg); err != nil {
		m.env.Logger.Warn("writing deployment config", "team", team, "error", err)
	}
}

func certificateSigningRequest(key crypto.Signer, team domain.TeamID, kind domain.CertificateKind) ([]byte, error) {
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:   fmt.Sprintf("signet %s %s", team, kind),
			Organization: []string{string(team)},
		},
	}, key)
	if err != nil {
		return nil, fmt.Errorf("certificate request: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
