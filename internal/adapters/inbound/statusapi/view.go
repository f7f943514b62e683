package statusapi

import (
	"slices"
	"time"

	"github.com/sufield/signet/internal/app"
	"github.com/sufield/signet/internal/domain"
)

// View is the JSON form of app.StatusReport.
type View struct {
	TeamID        string            `json:"team_id"`
	App           string            `json:"app_identifier,omitempty"`
	Remote        bool              `json:"remote"`
	RemoteError   string            `json:"remote_error,omitempty"`
	Quota         []QuotaView       `json:"quota"`
	Certificates  []CertificateView `json:"certificates"`
	Profiles      []ProfileView     `json:"profiles"`
	HighWaterMark int               `json:"build_high_water_mark"`
	Deployments   []DeploymentView  `json:"deployments"`
	Strategies    []StrategyView    `json:"upload_strategies"`
	AuditTail     []string          `json:"audit_tail,omitempty"`
}

type DeploymentView struct {
	RunID            string    `json:"run_id"`
	Timestamp        time.Time `json:"timestamp"`
	Version          string    `json:"version"`
	Build            int       `json:"build"`
	LocallyResolved  bool      `json:"locally_resolved,omitempty"`
	UploadStrategy   string    `json:"upload_strategy,omitempty"`
	ProcessingStatus string    `json:"processing_status,omitempty"`
	TimedOut         bool      `json:"timed_out,omitempty"`
	Outcome          string    `json:"outcome"`
	Error            string    `json:"error,omitempty"`
	DurationSeconds  float64   `json:"duration_seconds"`
}

type QuotaView struct {
	Kind  string `json:"kind"`
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
}

type CertificateView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Kind      string    `json:"kind"`
	Origin    string    `json:"origin"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}

type ProfileView struct {
	UUID          string    `json:"uuid"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind"`
	AppIdentifier string    `json:"app_identifier"`
	ExpiresAt     time.Time `json:"expires_at"`
	Expired       bool      `json:"expired"`
}

type StrategyView struct {
	Name        string    `json:"name"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	SuccessRate float64   `json:"success_rate"`
	LastUsed    time.Time `json:"last_used,omitzero"`
}

// NewView flattens rep, judging expiry at now.
func NewView(rep app.StatusReport, now time.Time) View {
	v := View{
		TeamID:        rep.TeamID.String(),
		App:           rep.App,
		Remote:        rep.Remote,
		RemoteError:   rep.RemoteError,
		Quota:         []QuotaView{},
		Certificates:  []CertificateView{},
		Profiles:      []ProfileView{},
		HighWaterMark: int(rep.HighWaterMark),
		Deployments:   make([]DeploymentView, 0, len(rep.Deployments)),
		Strategies:    []StrategyView{},
		AuditTail:     rep.AuditTail,
	}
	for _, d := range rep.Deployments {
		v.Deployments = append(v.Deployments, DeploymentView{
			RunID:            d.RunID,
			Timestamp:        d.Timestamp,
			Version:          d.Version.String(),
			Build:            int(d.Build),
			LocallyResolved:  d.LocallyResolved,
			UploadStrategy:   d.UploadStrategy,
			ProcessingStatus: d.ProcessingStatus,
			TimedOut:         d.TimedOut,
			Outcome:          d.Outcome,
			Error:            d.Error,
			DurationSeconds:  d.Total.Seconds(),
		})
	}

	for _, kind := range domain.CertificateKinds {
		used := 0
		for _, c := range rep.Certificates[kind] {
			expired := c.IsExpired(now)
			if !expired {
				used++
			}
			v.Certificates = append(v.Certificates, CertificateView{
				ID:        c.ID,
				Name:      c.Name,
				Kind:      c.Kind.String(),
				Origin:    string(c.Origin),
				ExpiresAt: c.ExpiresAt,
				Expired:   expired,
			})
		}
		v.Quota = append(v.Quota, QuotaView{Kind: kind.String(), Used: used, Limit: kind.Quota()})
	}

	for _, p := range rep.Profiles {
		v.Profiles = append(v.Profiles, ProfileView{
			UUID:          p.UUID,
			Name:          p.Name,
			Kind:          p.Kind.String(),
			AppIdentifier: p.AppIdentifier.String(),
			ExpiresAt:     p.ExpiresAt,
			Expired:       !p.ExpiresAt.After(now),
		})
	}
	slices.SortFunc(v.Profiles, func(a, b ProfileView) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})

	for _, s := range rep.Strategies {
		sv := StrategyView{Name: s.Name, Successes: s.Successes, Failures: s.Failures, LastUsed: s.LastUsed}
		if total := s.Successes + s.Failures; total > 0 {
			sv.SuccessRate = float64(s.Successes) / float64(total)
		}
		v.Strategies = append(v.Strategies, sv)
	}
	return v
}
