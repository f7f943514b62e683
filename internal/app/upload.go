package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
)

// UploadOutcome reports which strategy delivered the artifact.
type UploadOutcome struct {
	Strategy string
	Receipt  ports.UploadReceipt
	Attempts int
	Order    []string
}

// UploadManager validates an artifact and delivers it through an ordered
// list of strategies, falling back to the next one when a strategy fails.
type UploadManager struct {
	strategies []ports.UploadStrategy
	inspector  ports.ArtifactInspector
	ranking    ports.StrategyRanking
	rerank     bool
	env        Env
}

// NewUploadManager wires a manager. ranking may be nil; with rerank the
// configured order is replaced by historical success rate.
func NewUploadManager(strategies []ports.UploadStrategy, inspector ports.ArtifactInspector, ranking ports.StrategyRanking, rerank bool, env Env) *UploadManager {
	return &UploadManager{
		strategies: strategies,
		inspector:  inspector,
		ranking:    ranking,
		rerank:     rerank,
		env:        env.withDefaults(),
	}
}

// Validate checks the artifact against req without touching the network.
func (m *UploadManager) Validate(ctx context.Context, req ports.UploadRequest) error {
	const op = "validate artifact"
	info, err := m.inspector.Inspect(ctx, req.ArtifactPath)
	if err != nil {
		return domain.NewError(domain.ErrInvalidIpa, op, err)
	}
	var problems []string
	if info.BundleIdentifier != req.AppIdentifier.String() {
		problems = append(problems, fmt.Sprintf("bundle identifier %q, expected %q", info.BundleIdentifier, req.AppIdentifier))
	}
	if !info.Signed {
		problems = append(problems, "artifact is not signed")
	}
	if req.Build > 0 && info.Build != req.Build.String() {
		problems = append(problems, fmt.Sprintf("build %q, expected %d", info.Build, req.Build))
	}
	if len(problems) > 0 {
		return domain.NewError(domain.ErrInvalidIpa, op, errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// Order returns the strategies in the order they will be tried.
func (m *UploadManager) Order(ctx context.Context) []ports.UploadStrategy {
	order := slices.Clone(m.strategies)
	if !m.rerank || m.ranking == nil {
		return order
	}
	stats, err := m.ranking.StrategyStats(ctx)
	if err != nil {
		m.env.Logger.Warn("reading upload strategy stats", "error", err)
		return order
	}
	score := make(map[string]float64, len(stats))
	for _, s := range stats {
		score[s.Name] = successRate(s)
	}
	prior := successRate(ports.StrategyStat{})
	get := func(name string) float64 {
		if v, ok := score[name]; ok {
			return v
		}
		return prior
	}
	slices.SortStableFunc(order, func(a, b ports.UploadStrategy) int {
		sa, sb := get(a.Name()), get(b.Name())
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return 0
	})
	return order
}

// successRate is the Laplace-smoothed success ratio.
func successRate(s ports.StrategyStat) float64 {
	return float64(s.Successes+1) / float64(s.Successes+s.Failures+2)
}

// Upload validates the artifact, then tries each strategy in order. Every
// attempt is audited. If all strategies fail the last error is wrapped in
// ErrUploadFailed.
func (m *UploadManager) Upload(ctx context.Context, req ports.UploadRequest) (UploadOutcome, error) {
	if err := m.Validate(ctx, req); err != nil {
		return UploadOutcome{}, err
	}
	if len(m.strategies) == 0 {
		return UploadOutcome{}, domain.NewError(domain.ErrUploadFailed, "upload", errors.New("no upload strategies configured"))
	}

	var out UploadOutcome
	order := m.Order(ctx)
	for _, s := range order {
		out.Order = append(out.Order, s.Name())
	}

	var last error
	for _, s := range order {
		receipt, err := retry.DoValue(ctx, m.env.Retry, func(ctx context.Context) (ports.UploadReceipt, error) {
			out.Attempts++
			r, err := s.Upload(ctx, req)
			m.recordAttempt(ctx, req, s.Name(), out.Attempts, err)
			return r, err
		})
		if err == nil {
			if receipt.Strategy == "" {
				receipt.Strategy = s.Name()
			}
			out.Strategy, out.Receipt = s.Name(), receipt
			m.env.Audit.Record(audit.Event{
				Kind:    audit.KindUpload,
				App:     req.AppIdentifier.String(),
				Version: req.Version.String(),
				Build:   req.Build.String(),
				Status:  "UPLOADED",
				Detail:  map[string]string{"strategy": s.Name(), "delivery": receipt.DeliveryID},
			})
			return out, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, ports.ErrUnauthorized) {
			m.env.Logger.Warn("upload strategy rejected credentials", "strategy", s.Name(), "error", err)
		}
	}

	m.env.Audit.Record(audit.Event{
		Level:   audit.LevelError,
		Kind:    audit.KindUpload,
		App:     req.AppIdentifier.String(),
		Version: req.Version.String(),
		Build:   req.Build.String(),
		Status:  "FAILED",
		Detail:  map[string]string{"strategies": strings.Join(out.Order, ","), "error": last.Error()},
	})
	return out, domain.NewError(domain.ErrUploadFailed, "upload", last)
}

func (m *UploadManager) recordAttempt(ctx context.Context, req ports.UploadRequest, strategy string, attempt int, err error) {
	ok := err == nil
	m.env.Metrics.UploadAttempt(strategy, ok)
	if m.ranking != nil {
		if rerr := m.ranking.RecordUploadAttempt(ctx, strategy, ok); rerr != nil {
			m.env.Logger.Warn("recording upload attempt", "strategy", strategy, "error", rerr)
		}
	}
	e := audit.Event{
		Kind:    audit.KindUploadAttempt,
		App:     req.AppIdentifier.String(),
		Version: req.Version.String(),
		Build:   req.Build.String(),
		Status:  "SUCCEEDED",
		Detail:  map[string]string{"strategy": strategy, "attempt": fmt.Sprint(attempt)},
	}
	if !ok {
		e.Level, e.Status = audit.LevelWarn, "FAILED"
		e.Detail["error"] = err.Error()
	}
	m.env.Audit.Record(e)
}
