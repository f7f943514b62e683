package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/debug"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/metrics"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
	"github.com/sufield/signet/internal/shutdown"
)

// Pipeline stage names. They key stage timings, metrics and injected faults.
const (
	StageKeychain     = "keychain"
	StageImport       = "import"
	StageCertificates = "certificates"
	StageProfiles     = "profiles"
	StageVersion      = "version"
	StageBuild        = "build"
	StageUpload       = "upload"
	StageMonitor      = "monitor"
	StageRecord       = "record"
)

// DeployStages lists the stages of Deploy in execution order.
var DeployStages = []string{
	StageKeychain, StageImport, StageCertificates, StageProfiles,
	StageVersion, StageBuild, StageUpload, StageMonitor, StageRecord,
}

// AuditLogName is the per-team audit file under Settings.AuditDir.
const AuditLogName = "deployment.log"

// StrategyFactory builds the upload strategies for one run.
type StrategyFactory = ports.StrategyFactory

// Settings tune a Pipeline.
type Settings struct {
	KeychainDir string
	// AuditDir holds {team}/deployment.log. Empty keeps the audit in memory.
	AuditDir            string
	Retry               retry.Policy
	RerankStrategies    bool
	// UploadAttempts bounds retries per strategy; 0 keeps Retry.Attempts.
	UploadAttempts      int
	AllowBuildConflicts bool
	MaxWait             time.Duration
	EnhancedMaxWait     time.Duration
	PollInterval        time.Duration
	MaxPollErrors       int
	BuildOutputDir      string
	MetricsTextfile     string
	// RunTimeout cancels Deploy once exceeded; 0 disables it.
	RunTimeout time.Duration
}

// Deps are the adapters and ambient services a Pipeline runs on.
type Deps struct {
	Files      ports.CredentialFiles
	Security   ports.SecurityBackend
	Remote     ports.RemoteFactory
	Strategies StrategyFactory
	BuildTool  ports.BuildTool
	Inspector  ports.ArtifactInspector
	State      ports.StateStore    // optional
	Passwords  ports.PasswordSource // optional

	Hooks   *shutdown.Hooks
	Faults  *debug.FaultProfile
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	NewKey  KeyGenerator

	Settings Settings
}

// Pipeline runs the release use cases. Credential state, per-team locks and
// the build ledger are shared by every run of one Pipeline.
type Pipeline struct {
	Deps

	store  *domain.CredentialStore
	locks  *TeamLocks
	ledger *BuildLedger
}

// NewPipeline checks deps and fills defaults.
func NewPipeline(d Deps) (*Pipeline, error) {
	var missing []string
	for name, ok := range map[string]bool{
		"Files":      d.Files != nil,
		"Security":   d.Security != nil,
		"Remote":     d.Remote != nil,
		"Strategies": d.Strategies != nil,
		"BuildTool":  d.BuildTool != nil,
		"Inspector":  d.Inspector != nil,
	} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing dependencies %v", missing)
	}
	if d.Hooks == nil {
		d.Hooks = shutdown.Default
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	d.Logger = logging.OrDiscard(d.Logger)
	if d.Settings.Retry.Attempts == 0 {
		d.Settings.Retry = retry.Default()
	}
	if d.Settings.MaxWait <= 0 {
		d.Settings.MaxWait = DefaultMaxWait
	}
	if d.Settings.EnhancedMaxWait < d.Settings.MaxWait {
		d.Settings.EnhancedMaxWait = 3 * d.Settings.MaxWait
	}
	return &Pipeline{
		Deps:   d,
		store:  domain.NewCredentialStore(),
		locks:  NewTeamLocks(),
		ledger: NewBuildLedger(),
	}, nil
}

// Store exposes the shared credential state.
func (p *Pipeline) Store() *domain.CredentialStore { return p.store }

// run is the per-invocation context: its audit log, managers and record.
type run struct {
	id     string
	team   domain.TeamID
	app    domain.AppIdentifier
	start  time.Time
	cancel context.CancelFunc
	env    Env
	record domain.DeploymentRecord

	keychain *KeychainManager
}

func (p *Pipeline) newRun(team domain.TeamID, app domain.AppIdentifier, cancel context.CancelFunc) *run {
	id := uuid.NewString()
	logger := p.Logger.With("run", id, "team", string(team), "app", app.String())

	log := audit.New(p.Clock, logger)
	if path := p.auditPath(team); path != "" {
		sink, err := audit.NewFileSink(path)
		if err != nil {
			logger.Warn("audit log unavailable", "path", path, "error", err)
		} else {
			log.AddSink(sink)
		}
	}

	policy := p.Settings.Retry
	policy.Notify = func(err error, wait time.Duration) {
		logger.Debug("retrying remote call", "error", err, "wait", wait)
	}
	env := Env{Clock: p.Clock, Audit: log, Logger: logger, Metrics: p.Metrics, Retry: policy}

	r := &run{
		id:     id,
		team:   team,
		app:    app,
		start:  p.Clock.Now(),
		cancel: cancel,
		env:    env,
		record: domain.DeploymentRecord{RunID: id, Timestamp: p.Clock.Now(), TeamID: team, AppIdentifier: app.String()},
	}
	r.keychain = NewKeychainManager(p.Settings.KeychainDir, p.Security, p.Hooks, env)
	return r
}

func (p *Pipeline) auditPath(team domain.TeamID) string {
	if p.Settings.AuditDir == "" {
		return ""
	}
	return filepath.Join(p.Settings.AuditDir, string(team), AuditLogName)
}

// stage runs fn under name: it applies injected faults, times the stage and
// converts cancellation into ErrInterrupted.
func (p *Pipeline) stage(ctx context.Context, r *run, name string, fn func(ctx context.Context) error) error {
	if p.Faults.ShouldInterrupt(name) {
		r.env.Logger.Warn("simulated interrupt", "stage", name)
		p.interrupt(ctx, r)
	}
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.ErrInterrupted, name, err)
	}
	if err := p.Faults.ShouldFail(name); err != nil {
		return err
	}

	start := p.Clock.Now()
	err := fn(ctx)
	d := p.Clock.Since(start)
	r.record.Stages = append(r.record.Stages, domain.StageDuration{Stage: name, Duration: d})
	p.Metrics.ObserveStage(name, err == nil, d)
	r.env.Logger.Debug("stage finished", "stage", name, "duration", d, "error", err)

	if err != nil && ctx.Err() != nil && !errors.Is(err, domain.ErrInterrupted) {
		return domain.NewError(domain.ErrInterrupted, name, err)
	}
	return err
}

// interrupt does what the signal handler does: run every cleanup hook and
// cancel the run.
func (p *Pipeline) interrupt(ctx context.Context, r *run) {
	if err := p.Hooks.Run(context.WithoutCancel(ctx)); err != nil {
		r.env.Logger.Warn("cleanup hooks failed", "error", err)
	}
	r.cancel()
}

// withContainer acquires the run's container, calls fn and always releases it.
func (p *Pipeline) withContainer(ctx context.Context, r *run, password string, fn func(h *ContainerHandle) error) (err error) {
	var h *ContainerHandle
	if err := p.stage(ctx, r, StageKeychain, func(ctx context.Context) (err error) {
		h, err = r.keychain.Acquire(ctx, r.id, password)
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			r.keychain.MarkFailed(h)
		}
		if rerr := r.keychain.Release(ctx, h); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn(h)
}

// remote opens the remote service with the team's API key.
func (p *Pipeline) remote(ctx context.Context, team domain.TeamID, c Credentials) (ports.APICredentials, ports.RemoteService, error) {
	const op = "open remote service"
	keyPath, err := p.Files.APIKeyPath(team)
	if err != nil {
		return ports.APICredentials{}, nil, domain.NewError(domain.ErrAuthentication, op, err)
	}
	creds := ports.APICredentials{KeyID: c.APIKeyID, IssuerID: c.APIIssuerID, KeyPath: keyPath, AppleID: c.AppleID}
	svc, err := p.Remote(ctx, creds)
	if err != nil {
		return creds, nil, remoteError(domain.ErrAuthentication, op, err)
	}
	return creds, svc, nil
}

// password resolves the container password: explicit, then stored, then a
// freshly generated one that is stored for later runs.
func (p *Pipeline) password(team domain.TeamID, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p.Passwords != nil {
		pw, err := p.Passwords.Password(team)
		if err == nil && pw != "" {
			return pw, nil
		}
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			p.Logger.Warn("reading stored container password", "team", team, "error", err)
		}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate container password: %w", err)
	}
	pw := base64.RawURLEncoding.EncodeToString(buf)
	if p.Passwords != nil {
		if err := p.Passwords.StorePassword(team, pw); err != nil {
			p.Logger.Warn("storing container password", "team", team, "error", err)
		}
	}
	return pw, nil
}

// SigningMaterial is what the import, certificates and profiles stages produce.
type SigningMaterial struct {
	Import       domain.ImportReport
	Certificates []domain.Certificate
	Profiles     []ProfileResult
}

// Target returns the profile for the deployment's own kind.
func (s SigningMaterial) Target() ProfileResult {
	return s.Profiles[len(s.Profiles)-1]
}

// signingMaterial imports existing files, then ensures a development
// certificate and profile plus, for distribution kinds, the matching pair.
func (p *Pipeline) signingMaterial(ctx context.Context, r *run, remote ports.RemoteService, h *ContainerHandle, password string, kind domain.ProfileKind) (SigningMaterial, error) {
	var out SigningMaterial

	err := p.stage(ctx, r, StageImport, func(ctx context.Context) error {
		files, err := p.Files.CertificateFiles(r.team)
		if err != nil {
			r.env.Logger.Warn("listing certificate files", "error", err)
		}
		out.Import = r.keychain.ImportExisting(ctx, h, files, password)
		return nil
	})
	if err != nil {
		return out, err
	}

	certKinds := []domain.CertificateKind{domain.CertificateDevelopment}
	profileKinds := []domain.ProfileKind{domain.ProfileDevelopment}
	if kind != domain.ProfileDevelopment {
		certKinds = append(certKinds, kind.CertificateKind())
		profileKinds = append(profileKinds, kind)
	}

	certs := NewCertificateManager(p.store, remote, p.Files, r.keychain, p.locks, p.NewKey, r.env)
	err = p.stage(ctx, r, StageCertificates, func(ctx context.Context) error {
		for _, k := range certKinds {
			c, err := certs.EnsureValid(ctx, CertificateRequest{TeamID: r.team, Kind: k, Container: h, Password: password, App: r.app.String()})
			if err != nil {
				return err
			}
			out.Certificates = append(out.Certificates, c)
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	profiles := NewProfileManager(p.store, remote, p.Files, p.locks, r.env)
	err = p.stage(ctx, r, StageProfiles, func(ctx context.Context) error {
		for _, k := range profileKinds {
			res, err := profiles.EnsureValid(ctx, ProfileRequest{TeamID: r.team, App: r.app, Kind: k, Certificates: out.Certificates})
			if err != nil {
				return err
			}
			out.Profiles = append(out.Profiles, res)
		}
		return nil
	})
	return out, err
}

func certificateOf(certs []domain.Certificate, kind domain.CertificateKind) domain.Certificate {
	for _, c := range certs {
		if c.Kind == kind {
			return c
		}
	}
	return domain.Certificate{}
}

// DeployResult is the outcome of Pipeline.Deploy.
type DeployResult struct {
	RunID      string
	Resolution domain.VersionResolution
	Signing    SigningMaterial
	Artifact   string
	Upload     UploadOutcome
	Processing domain.ProcessingOutcome
	Record     domain.DeploymentRecord
}

// Deploy runs one full release: container, signing material, version
// resolution, build, upload, processing watch and bookkeeping. The container
// is released on every exit path and a DeploymentRecord is written whether
// the run succeeded or not.
func (p *Pipeline) Deploy(ctx context.Context, req DeployRequest) (res DeployResult, err error) {
	team, err := domain.ParseTeamID(req.TeamID)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cfg, err := p.Files.LoadConfig(team)
	if err != nil {
		return res, err
	}
	req.TeamID = string(team)
	req = req.merged(cfg)
	if err := validateRequest(req); err != nil {
		return res, err
	}
	_, app, err := parseTarget(req.TeamID, req.AppIdentifier)
	if err != nil {
		return res, err
	}
	kind, err := domain.ProfileKindForConfiguration(req.Configuration)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	mode, err := domain.ParseBumpMode(req.VersionBump)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	localVersion, err := domain.ParseMarketingVersion(req.MarketingVersion)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	localBuild, err := domain.ParseBuildNumber(cfg.BuildNumber)
	if err != nil {
		return res, fmt.Errorf("%w: config.env: %v", ErrInvalidRequest, err)
	}

	if d := p.Settings.RunTimeout; d > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, d)
		defer stop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := p.newRun(team, app, cancel)
	res.RunID = r.id
	defer func() { res.Record = p.finish(ctx, r, err) }()

	r.env.Logger.Info("deployment started", "configuration", req.Configuration, "profile_kind", kind)

	creds, remote, err := p.remote(ctx, team, req.Credentials)
	if err != nil {
		return res, err
	}
	strategies, err := p.Strategies(ctx, creds, remote)
	if err != nil {
		return res, fmt.Errorf("upload strategies: %w", err)
	}
	password, err := p.password(team, req.KeychainPassword)
	if err != nil {
		return res, err
	}

	err = p.withContainer(ctx, r, password, func(h *ContainerHandle) error {
		var err error
		res.Signing, err = p.signingMaterial(ctx, r, remote, h, password, kind)
		if err != nil {
			return err
		}
		target := res.Signing.Target().Profile

		resolver := NewVersionResolver(remote, p.State, p.ledger, p.Settings.AllowBuildConflicts, r.env)
		err = p.stage(ctx, r, StageVersion, func(ctx context.Context) error {
			res.Resolution, err = resolver.Resolve(ctx, VersionRequest{
				TeamID:        team,
				App:           app,
				LocalVersion:  localVersion,
				LocalBuild:    localBuild,
				Mode:          mode,
				ExplicitBuild: domain.BuildNumber(req.BuildNumber),
			})
			return err
		})
		if err != nil {
			return err
		}
		r.record.Version, r.record.Build = res.Resolution.Version, res.Resolution.Build
		r.record.LocallyResolved = res.Resolution.LocallyResolved

		builder := NewBuildOrchestrator(p.BuildTool, p.Inspector, r.env)
		err = p.stage(ctx, r, StageBuild, func(ctx context.Context) error {
			if err := r.keychain.MarkInUse(h); err != nil {
				return err
			}
			out, err := builder.Build(ctx, ports.BuildRequest{
				Scheme:          req.Scheme,
				Configuration:   req.Configuration,
				TeamID:          team,
				AppIdentifier:   app,
				Version:         res.Resolution.Version,
				Build:           res.Resolution.Build,
				ProfileKind:     kind,
				ProfileName:     target.Name,
				ProfileUUID:     target.UUID,
				CertificateName: certificateOf(res.Signing.Certificates, kind.CertificateKind()).Name,
				KeychainPath:    h.Path(),
				OutputDir:       p.Settings.BuildOutputDir,
			})
			res.Artifact = out.ArtifactPath
			return err
		})
		if err != nil {
			return err
		}

		uploadEnv := r.env
		if n := p.Settings.UploadAttempts; n > 0 {
			uploadEnv.Retry = uploadEnv.Retry.WithAttempts(n)
		}
		uploader := NewUploadManager(strategies, p.Inspector, p.State, p.Settings.RerankStrategies, uploadEnv)
		err = p.stage(ctx, r, StageUpload, func(ctx context.Context) error {
			res.Upload, err = uploader.Upload(ctx, ports.UploadRequest{
				ArtifactPath:  res.Artifact,
				TeamID:        team,
				AppIdentifier: app,
				Version:       res.Resolution.Version,
				Build:         res.Resolution.Build,
				Credentials:   creds,
			})
			return err
		})
		r.record.UploadStrategy = res.Upload.Strategy
		return err
	})
	if err != nil {
		return res, err
	}

	monitor := NewProcessingMonitor(remote, p.Settings.MaxPollErrors, r.env)
	maxWait := p.Settings.MaxWait
	if req.EnhancedMonitoring {
		maxWait = p.Settings.EnhancedMaxWait
	}
	err = p.stage(ctx, r, StageMonitor, func(ctx context.Context) error {
		res.Processing, err = monitor.Watch(ctx, WatchRequest{
			TeamID:       team,
			App:          app,
			Ref:          ports.BuildRef{Version: res.Resolution.Version, Build: res.Resolution.Build},
			MaxWait:      maxWait,
			PollInterval: p.Settings.PollInterval,
		})
		return err
	})
	r.record.ProcessingStatus = res.Processing.State.String()
	r.record.TimedOut = res.Processing.TimedOut
	if err != nil {
		return res, err
	}

	err = p.stage(ctx, r, StageRecord, func(ctx context.Context) error {
		cfg.TeamID = string(team)
		cfg.AppIdentifier = app.String()
		cfg.Scheme = req.Scheme
		cfg.APIKeyID, cfg.APIIssuerID, cfg.AppleID = req.APIKeyID, req.APIIssuerID, req.AppleID
		cfg.MarketingVersion = res.Resolution.Version.String()
		cfg.BuildNumber = res.Resolution.Build.String()
		cfg.LastDeployedVersion = res.Resolution.Version.String()
		cfg.LastDeployedBuild = res.Resolution.Build.String()
		cfg.LastDeployedAt = p.Clock.Now().UTC().Format(time.RFC3339)
		// certificates created during this run were recorded meanwhile
		if latest, err := p.Files.LoadConfig(team); err == nil {
			cfg.APICreatedCertificateIDs = latest.APICreatedCertificateIDs
		}
		return p.Files.SaveConfig(team, cfg)
	})
	return res, err
}

// finish writes the deployment record, the DEPLOY audit event and metrics.
func (p *Pipeline) finish(ctx context.Context, r *run, err error) domain.DeploymentRecord {
	ctx = context.WithoutCancel(ctx)
	rec := r.record
	rec.Total = p.Clock.Since(r.start)
	rec.Outcome = domain.OutcomeSucceeded
	level := audit.LevelInfo
	if err != nil {
		rec.Outcome = domain.OutcomeFailed
		rec.Error = err.Error()
		level = audit.LevelError
	}

	if p.State != nil {
		if serr := p.State.AppendDeployment(ctx, rec); serr != nil {
			r.env.Logger.Warn("recording deployment", "error", serr)
		}
	}
	detail := map[string]string{"run": r.id, "total": rec.Total.String()}
	if rec.UploadStrategy != "" {
		detail["strategy"] = rec.UploadStrategy
	}
	if rec.ProcessingStatus != "" {
		detail["processing"] = rec.ProcessingStatus
	}
	if err != nil {
		detail["error"] = err.Error()
	}
	r.env.Audit.Record(audit.Event{
		Level:   level,
		Kind:    audit.KindDeploy,
		App:     r.app.String(),
		Version: rec.Version.String(),
		Build:   buildLabel(rec.Build),
		Status:  rec.Outcome,
		Detail:  detail,
	})

	p.Metrics.Deployment(err == nil)
	if path := p.Settings.MetricsTextfile; path != "" {
		if werr := p.Metrics.WriteTextfile(path); werr != nil {
			r.env.Logger.Warn("writing metrics textfile", "path", path, "error", werr)
		}
	}
	if err != nil {
		r.env.Logger.Error("deployment failed", "error", err, "suggestion", domain.Suggestion(err))
	} else {
		r.env.Logger.Info("deployment finished", "version", rec.Version, "build", rec.Build, "processing", rec.ProcessingStatus)
	}
	return rec
}

func buildLabel(b domain.BuildNumber) string {
	if b == 0 {
		return ""
	}
	return strconv.Itoa(int(b))
}
