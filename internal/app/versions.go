package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/sufield/signet/internal/assert"
	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
)

// BuildLedger remembers the highest build number handed out per app in this
// process, so two runs resolving concurrently never get the same number.
type BuildLedger struct {
	mu       sync.Mutex
	keys     map[string]*sync.Mutex
	observed map[string]domain.BuildNumber
}

// NewBuildLedger returns an empty ledger.
func NewBuildLedger() *BuildLedger {
	return &BuildLedger{keys: make(map[string]*sync.Mutex), observed: make(map[string]domain.BuildNumber)}
}

func ledgerKey(team domain.TeamID, app domain.AppIdentifier) string {
	return string(team) + "/" + app.String()
}

func (l *BuildLedger) lock(key string) func() {
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Max returns the highest build observed for team/app.
func (l *BuildLedger) Max(team domain.TeamID, app domain.AppIdentifier) domain.BuildNumber {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.observed[ledgerKey(team, app)]
}

func (l *BuildLedger) observe(team domain.TeamID, app domain.AppIdentifier, b domain.BuildNumber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := ledgerKey(team, app)
	l.observed[k] = domain.MaxBuild(l.observed[k], b)
}

// VersionRequest carries the local version state of one deployment.
type VersionRequest struct {
	TeamID       domain.TeamID
	App          domain.AppIdentifier
	LocalVersion domain.MarketingVersion
	LocalBuild   domain.BuildNumber
	Mode         domain.BumpMode

	// ExplicitBuild, when non-zero, is the build number the caller wants.
	ExplicitBuild domain.BuildNumber
}

// VersionResolver picks the next (version, build) pair. The build is one
// above the maximum of the local build, the persisted high-water mark, every
// build observed in this process and the latest remote build, so it is
// strictly greater than anything previously uploaded.
type VersionResolver struct {
	api            ports.BuildAPI
	marks          ports.HighWaterMarks
	ledger         *BuildLedger
	allowConflicts bool
	env            Env
}

// NewVersionResolver wires a resolver. With allowConflicts an explicit build
// number that is too low is replaced by the computed one instead of failing.
func NewVersionResolver(api ports.BuildAPI, marks ports.HighWaterMarks, ledger *BuildLedger, allowConflicts bool, env Env) *VersionResolver {
	if ledger == nil {
		ledger = NewBuildLedger()
	}
	return &VersionResolver{api: api, marks: marks, ledger: ledger, allowConflicts: allowConflicts, env: env.withDefaults()}
}

// Resolve reconciles local and remote state. When the remote is unreachable
// or rejects the credential, the result is marked LocallyResolved and
// computed from local state and the high-water mark alone.
func (r *VersionResolver) Resolve(ctx context.Context, req VersionRequest) (domain.VersionResolution, error) {
	const op = "resolve version"
	if _, err := domain.ParseMarketingVersion(req.LocalVersion.String()); err != nil {
		return domain.VersionResolution{}, fmt.Errorf("%s: %w", op, err)
	}
	unlock := r.ledger.lock(ledgerKey(req.TeamID, req.App))
	defer unlock()

	var hwm domain.BuildNumber
	if r.marks != nil {
		var err error
		if hwm, err = r.marks.HighWaterMark(ctx, req.TeamID, req.App); err != nil {
			r.env.Logger.Warn("reading build high-water mark", "app", req.App, "error", err)
		}
	}
	observed := r.ledger.Max(req.TeamID, req.App)

	res := domain.VersionResolution{HighWaterMark: domain.MaxBuild(hwm, observed)}
	remote, err := retry.DoValue(ctx, r.env.Retry, func(ctx context.Context) (ports.RemoteBuild, error) {
		return r.api.LatestBuild(ctx, req.TeamID, req.App)
	})
	switch {
	case err == nil:
		res.RemoteVersion, res.RemoteBuild = remote.Version, remote.Build
	case errors.Is(err, ports.ErrNotFound):
	default:
		res.LocallyResolved = true
		r.env.Logger.Warn("remote build lookup failed, resolving locally", "app", req.App, "error", err)
	}

	base := domain.MaxBuild(req.LocalBuild, hwm, observed, res.RemoteBuild)
	res.Build = base.Next()
	if req.ExplicitBuild > 0 {
		switch {
		case req.ExplicitBuild > base:
			res.Build = req.ExplicitBuild
		case r.allowConflicts:
			r.env.Logger.Warn("explicit build number too low, using computed", "requested", req.ExplicitBuild, "computed", res.Build)
		default:
			return domain.VersionResolution{}, domain.NewError(domain.ErrBuildConflict, op,
				fmt.Errorf("build %d is not above highest known build %d", req.ExplicitBuild, base))
		}
	}

	version, err := nextVersion(req.LocalVersion, req.Mode, res.RemoteVersion)
	if err != nil {
		return domain.VersionResolution{}, fmt.Errorf("%s: %w", op, err)
	}
	res.Version = version

	assert.Invariantf(res.Build > base, "resolved build %d not above %d", res.Build, base)
	r.ledger.observe(req.TeamID, req.App, res.Build)
	if r.marks != nil {
		if err := r.marks.RecordBuild(ctx, req.TeamID, req.App, res.Version, res.Build); err != nil {
			r.env.Logger.Warn("recording build high-water mark", "app", req.App, "error", err)
		}
	}

	e := audit.Event{
		Kind:    audit.KindVersionResolved,
		App:     req.App.String(),
		Version: res.Version.String(),
		Build:   res.Build.String(),
		Status:  "RESOLVED",
		Detail: map[string]string{
			"local_build":  req.LocalBuild.String(),
			"remote_build": res.RemoteBuild.String(),
			"mode":         string(req.Mode),
		},
	}
	if res.LocallyResolved {
		e.Level, e.Status = audit.LevelWarn, "LOCAL_FALLBACK"
	}
	r.env.Audit.Record(e)
	return res, nil
}

// nextVersion applies mode to local. Sync moves to one patch above the
// remote version unless local is already ahead.
func nextVersion(local domain.MarketingVersion, mode domain.BumpMode, remote domain.MarketingVersion) (domain.MarketingVersion, error) {
	if mode == "" {
		mode = domain.BumpAuto
	}
	if mode == domain.BumpAuto {
		return local, nil
	}
	lv, err := semver.NewVersion(local.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidVersion, err)
	}

	var next semver.Version
	switch mode {
	case domain.BumpPatch:
		next = lv.IncPatch()
	case domain.BumpMinor:
		next = lv.IncMinor()
	case domain.BumpMajor:
		next = lv.IncMajor()
	case domain.BumpSync:
		if remote == "" {
			return local, nil
		}
		rv, err := semver.NewVersion(remote.String())
		if err != nil {
			return local, nil
		}
		target := rv.IncPatch()
		if lv.GreaterThan(&target) {
			return local, nil
		}
		next = target
	default:
		return "", fmt.Errorf("%w: bump mode %q", domain.ErrInvalidKind, mode)
	}
	return domain.ParseMarketingVersion(next.String())
}
