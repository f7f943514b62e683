// Package metrics defines the run metrics exposed on /metrics by the status
// server and written to a node-exporter textfile after each run.
//
// Every helper is safe on a nil *Metrics so components can be built without
// metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var stageBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

// Metrics holds the collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	uploadAttempts      *prometheus.CounterVec
	certificatesCreated *prometheus.CounterVec
	certificatesRevoked *prometheus.CounterVec
	profiles            *prometheus.CounterVec
	polls               *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	deployments         *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		uploadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signet",
			Name:      "upload_attempts_total",
			Help:      "Upload attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		certificatesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signet",
			Name:      "certificates_created_total",
			Help:      "Certificates created through the remote API",
		}, []string{"kind"}),
		certificatesRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signet",
			Name:      "certificates_revoked_total",
			Help:      "Certificates revoked, by reason (quota, expired)",
		}, []string{"kind", "reason"}),
		profiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signet",
			Name:      "profiles_total",
			Help:      "Provisioning profiles created or reused",
		}, []string{"kind", "action"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signet",
			Name:      "processing_polls_total",
			Help:      "Processing status polls by observed state",
		}, []string{"state"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "signet",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage durations",
			Buckets:   stageBuckets,
		}, []string{"stage", "outcome"}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signet",
			Name:      "deployments_total",
			Help:      "Deployment runs by outcome",
		}, []string{"outcome"}),
	}
	m.Registry.MustRegister(
		m.uploadAttempts,
		m.certificatesCreated,
		m.certificatesRevoked,
		m.profiles,
		m.polls,
		m.stageDuration,
		m.deployments,
	)
	return m
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) UploadAttempt(strategy string, ok bool) {
	if m == nil {
		return
	}
	m.uploadAttempts.WithLabelValues(strategy, outcome(ok)).Inc()
}

func (m *Metrics) CertificateCreated(kind string) {
	if m == nil {
		return
	}
	m.certificatesCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) CertificateRevoked(kind, reason string) {
	if m == nil {
		return
	}
	m.certificatesRevoked.WithLabelValues(kind, reason).Inc()
}

// Profile counts a profile action ("created" or "reused").
func (m *Metrics) Profile(kind, action string) {
	if m == nil {
		return
	}
	m.profiles.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) Poll(state string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveStage(stage string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(ok)).Observe(d.Seconds())
}

func (m *Metrics) Deployment(ok bool) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(outcome(ok)).Inc()
}

// WriteTextfile writes the registry in text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
