package inmemory

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// CertificateLifetime is how long issued certificates stay valid.
const CertificateLifetime = 365 * 24 * time.Hour

type remoteCert struct {
	cert    domain.Certificate
	revoked bool
}

type buildEntry struct {
	ref      ports.BuildRef
	uploaded time.Time
	polls    int
}

type buildKey struct {
	team domain.TeamID
	app  string
}

// Remote is an in-memory remote service.
type Remote struct {
	mu    sync.Mutex
	clock clock.PassiveClock

	caCert *x509.Certificate
	caKey  *ecdsa.PrivateKey

	nextID   int
	certs    map[domain.TeamID]map[string]*remoteCert
	profiles map[domain.TeamID][]domain.ProvisioningProfile
	apps     map[domain.TeamID]map[string]bool
	devices  map[domain.TeamID][]string
	builds   map[buildKey][]*buildEntry

	pollsUntilDone int
	finalState     domain.ProcessingState

	failures map[string][]error
	calls    map[string]int
}

var _ ports.RemoteService = (*Remote)(nil)

// NewRemote returns an empty remote. Uploaded builds become VALID on the
// third status poll unless SetProcessing says otherwise.
func NewRemote(clk clock.PassiveClock) (*Remote, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	caCert, caKey, err := generateCA(clk.Now())
	if err != nil {
		return nil, err
	}
	return &Remote{
		clock:          clk,
		caCert:         caCert,
		caKey:          caKey,
		certs:          make(map[domain.TeamID]map[string]*remoteCert),
		profiles:       make(map[domain.TeamID][]domain.ProvisioningProfile),
		apps:           make(map[domain.TeamID]map[string]bool),
		devices:        make(map[domain.TeamID][]string),
		builds:         make(map[buildKey][]*buildEntry),
		pollsUntilDone: 3,
		finalState:     domain.ProcessingValid,
		failures:       make(map[string][]error),
		calls:          make(map[string]int),
	}, nil
}

func generateCA(now time.Time) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("inmemory: key gen failed: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "In-Memory Worldwide Developer Relations CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(10 * CertificateLifetime),
		KeyUsage:              x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("inmemory: failed to create CA: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("inmemory: failed to parse CA: %w", err)
	}
	return cert, key, nil
}

// FailNext makes the next calls of op return errs, one per call.
// op is a method name such as "CreateCertificate".
func (r *Remote) FailNext(op string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op] = append(r.failures[op], errs...)
}

// Calls returns how many times op was called.
func (r *Remote) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// enter records the call and pops a scripted failure. Caller holds mu.
func (r *Remote) enter(op string) error {
	r.calls[op]++
	if q := r.failures[op]; len(q) > 0 {
		r.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

// SetProcessing sets how many polls an uploaded build needs and its final state.
func (r *Remote) SetProcessing(polls int, final domain.ProcessingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollsUntilDone = polls
	r.finalState = final
}

// AddCertificate seeds an existing certificate.
func (r *Remote) AddCertificate(c domain.Certificate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.certs[c.TeamID] == nil {
		r.certs[c.TeamID] = make(map[string]*remoteCert)
	}
	c.KeyRef = ""
	r.certs[c.TeamID][c.ID] = &remoteCert{cert: c}
}

// AddProfile seeds an existing profile.
func (r *Remote) AddProfile(p domain.ProvisioningProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.TeamID] = append(r.profiles[p.TeamID], p)
}

// AddDevice registers a device id.
func (r *Remote) AddDevice(team domain.TeamID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[team] = append(r.devices[team], id)
}

// AddBuild seeds a previously uploaded, already processed build.
func (r *Remote) AddBuild(team domain.TeamID, app domain.AppIdentifier, version domain.MarketingVersion, build domain.BuildNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := buildKey{team, app.String()}
	r.builds[k] = append(r.builds[k], &buildEntry{
		ref:      ports.BuildRef{Version: version, Build: build},
		uploaded: r.clock.Now(),
		polls:    r.pollsUntilDone,
	})
}

// Upload registers an uploaded build; processing starts now.
func (r *Remote) Upload(team domain.TeamID, app domain.AppIdentifier, version domain.MarketingVersion, build domain.BuildNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := buildKey{team, app.String()}
	r.builds[k] = append(r.builds[k], &buildEntry{
		ref:      ports.BuildRef{Version: version, Build: build},
		uploaded: r.clock.Now(),
	})
}

// ActiveCertificates returns non-revoked certificates of kind, expired included.
func (r *Remote) ActiveCertificates(team domain.TeamID, kind domain.CertificateKind) []domain.Certificate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(team, kind)
}

// Profiles returns every profile of team.
func (r *Remote) Profiles(team domain.TeamID) []domain.ProvisioningProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.profiles[team])
}

func (r *Remote) listLocked(team domain.TeamID, kind domain.CertificateKind) []domain.Certificate {
	var out []domain.Certificate
	for _, rc := range r.certs[team] {
		if !rc.revoked && rc.cert.Kind == kind {
			out = append(out, rc.cert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Remote) ListCertificates(ctx context.Context, team domain.TeamID, kind domain.CertificateKind) ([]domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListCertificates"); err != nil {
		return nil, err
	}
	return r.listLocked(team, kind), nil
}

func (r *Remote) CreateCertificate(ctx context.Context, team domain.TeamID, kind domain.CertificateKind, csrPEM []byte) (ports.IssuedCertificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("CreateCertificate"); err != nil {
		return ports.IssuedCertificate{}, err
	}

	now := r.clock.Now()
	valid := 0
	for _, c := range r.listLocked(team, kind) {
		if !c.IsExpired(now) {
			valid++
		}
	}
	if valid >= kind.Quota() {
		return ports.IssuedCertificate{}, fmt.Errorf("%w: %s certificate limit reached for team %s", ports.ErrConflict, kind, team)
	}

	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return ports.IssuedCertificate{}, fmt.Errorf("inmemory: csr is not a PEM certificate request")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return ports.IssuedCertificate{}, fmt.Errorf("inmemory: parse csr: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return ports.IssuedCertificate{}, fmt.Errorf("inmemory: csr signature: %w", err)
	}

	r.nextID++
	id := fmt.Sprintf("CERT%04d", r.nextID)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(int64(r.nextID) + 1),
		Subject: pkix.Name{
			CommonName:         fmt.Sprintf("Apple %s: signet (%s)", kind, team),
			OrganizationalUnit: []string{string(team)},
		},
		NotBefore:   now,
		NotAfter:    now.Add(CertificateLifetime),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, r.caCert, csr.PublicKey, r.caKey)
	if err != nil {
		return ports.IssuedCertificate{}, fmt.Errorf("inmemory: issue certificate: %w", err)
	}

	cert, err := domain.NewCertificate(id, kind, team, now, now.Add(CertificateLifetime), domain.OriginAPICreated)
	if err != nil {
		return ports.IssuedCertificate{}, err
	}
	cert.Name = template.Subject.CommonName
	if r.certs[team] == nil {
		r.certs[team] = make(map[string]*remoteCert)
	}
	r.certs[team][id] = &remoteCert{cert: cert}
	return ports.IssuedCertificate{Certificate: cert, DER: der}, nil
}

func (r *Remote) RevokeCertificate(ctx context.Context, team domain.TeamID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RevokeCertificate"); err != nil {
		return err
	}
	rc, ok := r.certs[team][id]
	if !ok || rc.revoked {
		return fmt.Errorf("certificate %s: %w", id, ports.ErrNotFound)
	}
	rc.revoked = true
	return nil
}

func (r *Remote) ListProfiles(ctx context.Context, team domain.TeamID) ([]domain.ProvisioningProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListProfiles"); err != nil {
		return nil, err
	}
	return slices.Clone(r.profiles[team]), nil
}

func (r *Remote) CreateProfile(ctx context.Context, req ports.ProfileRequest) (domain.ProvisioningProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("CreateProfile"); err != nil {
		return domain.ProvisioningProfile{}, err
	}
	if !r.apps[req.TeamID][req.AppIdentifier.String()] {
		return domain.ProvisioningProfile{}, fmt.Errorf("%w: app identifier %s not registered", ports.ErrConflict, req.AppIdentifier)
	}
	for _, id := range req.CertificateIDs {
		rc, ok := r.certs[req.TeamID][id]
		if !ok || rc.revoked {
			return domain.ProvisioningProfile{}, fmt.Errorf("%w: certificate %s unavailable", ports.ErrConflict, id)
		}
	}

	r.nextID++
	now := r.clock.Now()
	p, err := domain.NewProvisioningProfile(domain.ProvisioningProfile{
		ID:             fmt.Sprintf("PROF%04d", r.nextID),
		UUID:           uuid.NewString(),
		Name:           req.Name,
		Kind:           req.Kind,
		AppIdentifier:  req.AppIdentifier,
		TeamID:         req.TeamID,
		ExpiresAt:      now.Add(CertificateLifetime),
		CertificateIDs: req.CertificateIDs,
		DeviceIDs:      req.DeviceIDs,
		Content:        []byte("inmemory-profile:" + req.Name),
	})
	if err != nil {
		return domain.ProvisioningProfile{}, err
	}
	r.profiles[req.TeamID] = append(r.profiles[req.TeamID], p)
	return p, nil
}

func (r *Remote) EnsureAppIdentifier(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("EnsureAppIdentifier"); err != nil {
		return err
	}
	if r.apps[team] == nil {
		r.apps[team] = make(map[string]bool)
	}
	r.apps[team][app.String()] = true
	return nil
}

func (r *Remote) ListDevices(ctx context.Context, team domain.TeamID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListDevices"); err != nil {
		return nil, err
	}
	return slices.Clone(r.devices[team]), nil
}

func (r *Remote) LatestBuild(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) (ports.RemoteBuild, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("LatestBuild"); err != nil {
		return ports.RemoteBuild{}, err
	}
	entries := r.builds[buildKey{team, app.String()}]
	if len(entries) == 0 {
		return ports.RemoteBuild{}, fmt.Errorf("builds for %s: %w", app, ports.ErrNotFound)
	}
	latest := entries[0]
	for _, e := range entries[1:] {
		if e.ref.Build > latest.ref.Build {
			latest = e
		}
	}
	return ports.RemoteBuild{Version: latest.ref.Version, Build: latest.ref.Build, UploadedAt: latest.uploaded}, nil
}

func (r *Remote) BuildStatus(ctx context.Context, team domain.TeamID, app domain.AppIdentifier, ref ports.BuildRef) (domain.ProcessingState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("BuildStatus"); err != nil {
		return "", err
	}
	for _, e := range r.builds[buildKey{team, app.String()}] {
		if e.ref != ref {
			continue
		}
		e.polls++
		if r.pollsUntilDone > 0 && e.polls >= r.pollsUntilDone {
			return r.finalState, nil
		}
		return domain.ProcessingInProgress, nil
	}
	return "", fmt.Errorf("build %s (%d): %w", ref.Version, ref.Build, ports.ErrNotFound)
}
