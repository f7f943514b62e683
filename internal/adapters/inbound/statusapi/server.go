// Package statusapi serves a read-only view of signet's state over HTTP:
// per-team status as JSON and the run metrics for Prometheus.
//
// Routes:
//
//	GET /healthz
//	GET /v1/teams/{team}/status?remote=true&deployments=10&audit=20
//	GET /metrics
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/app"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/metrics"
)

// StatusSource answers status queries; *app.Pipeline implements it.
type StatusSource interface {
	Status(ctx context.Context, req app.StatusRequest) (app.StatusReport, error)
}

// Handler returns the router. m may be nil, in which case /metrics is absent.
func Handler(src StatusSource, m *metrics.Metrics, clk clock.PassiveClock, logger *slog.Logger) http.Handler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger = logging.OrDiscard(logger).With("component", "statusapi")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Debug("write error", "error", err)
		}
	})

	r.Get("/v1/teams/{team}/status", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		sr := app.StatusRequest{
			TeamID:      chi.URLParam(req, "team"),
			Remote:      q.Get("remote") == "true",
			Deployments: intParam(q.Get("deployments"), 10),
			AuditLines:  intParam(q.Get("audit"), 0),
		}
		rep, err := src.Status(req.Context(), sr)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, app.ErrInvalidRequest) {
				status = http.StatusBadRequest
			}
			logger.Warn("status request failed", "team", sr.TeamID, "error", err, "request_id", middleware.GetReqID(req.Context()))
			writeJSON(w, status, map[string]string{"error": err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, NewView(rep, clk.Now()), logger)
	})

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}
	return r
}

func intParam(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Debug("write error", "error", err)
	}
}

// Server is the HTTP server around Handler.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer validates addr and builds the server.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("address is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logging.OrDiscard(logger),
	}, nil
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}
