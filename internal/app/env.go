package app

import (
	"errors"
	"log/slog"
	"sync"

	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/metrics"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
)

// Env carries the ambient collaborators of one run.
type Env struct {
	Clock   clock.Clock
	Audit   *audit.Log
	Logger  *slog.Logger
	Metrics *metrics.Metrics // may be nil
	Retry   retry.Policy
}

func (e Env) withDefaults() Env {
	if e.Clock == nil {
		e.Clock = clock.RealClock{}
	}
	e.Logger = logging.OrDiscard(e.Logger)
	if e.Audit == nil {
		e.Audit = audit.New(e.Clock, e.Logger)
	}
	if e.Retry.Attempts == 0 {
		e.Retry = retry.Default()
	}
	return e
}

// TeamLocks serializes certificate and profile mutations per team so a
// quota check never races a concurrent creation.
type TeamLocks struct {
	mu    sync.Mutex
	locks map[domain.TeamID]*sync.Mutex
}

// NewTeamLocks returns an empty lock table.
func NewTeamLocks() *TeamLocks {
	return &TeamLocks{locks: make(map[domain.TeamID]*sync.Mutex)}
}

// Lock blocks until team is free and returns the unlock function.
func (l *TeamLocks) Lock(team domain.TeamID) func() {
	l.mu.Lock()
	m, ok := l.locks[team]
	if !ok {
		m = &sync.Mutex{}
		l.locks[team] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// remoteError wraps a remote failure into kind. Credential rejections are
// additionally tagged ErrAuthentication and carry its suggestion.
func remoteError(kind error, op string, err error) error {
	if errors.Is(err, ports.ErrUnauthorized) {
		inner := domain.NewError(domain.ErrAuthentication, op, err)
		if kind == domain.ErrAuthentication {
			return inner
		}
		return domain.NewError(kind, op, inner).WithSuggestion(domain.Suggestion(inner))
	}
	return domain.NewError(kind, op, err)
}
