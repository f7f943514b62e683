package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// Processing wait defaults.
const (
	DefaultMaxWait       = 10 * time.Minute
	DefaultPollInterval  = 30 * time.Second
	DefaultMaxPollErrors = 5
)

// WatchRequest identifies the uploaded build to watch.
type WatchRequest struct {
	TeamID       domain.TeamID
	App          domain.AppIdentifier
	Ref          ports.BuildRef
	MaxWait      time.Duration
	PollInterval time.Duration
}

// ProcessingMonitor polls the remote until an uploaded build reaches a
// terminal state or the wait budget is spent.
type ProcessingMonitor struct {
	api           ports.ProcessingAPI
	maxPollErrors int
	env           Env
}

// NewProcessingMonitor wires a monitor. maxPollErrors consecutive failed
// polls abort the watch; zero means DefaultMaxPollErrors.
func NewProcessingMonitor(api ports.ProcessingAPI, maxPollErrors int, env Env) *ProcessingMonitor {
	if maxPollErrors <= 0 {
		maxPollErrors = DefaultMaxPollErrors
	}
	return &ProcessingMonitor{api: api, maxPollErrors: maxPollErrors, env: env.withDefaults()}
}

// Watch polls until VALID or INVALID. Running out of time is not an error:
// the outcome carries TimedOut and the last observed state. A build the
// remote does not know yet counts as still processing.
func (m *ProcessingMonitor) Watch(ctx context.Context, req WatchRequest) (domain.ProcessingOutcome, error) {
	const op = "monitor processing"
	if req.MaxWait <= 0 {
		req.MaxWait = DefaultMaxWait
	}
	if req.PollInterval <= 0 {
		req.PollInterval = DefaultPollInterval
	}

	clk := m.env.Clock
	start := clk.Now()
	deadline := start.Add(req.MaxWait)
	out := domain.ProcessingOutcome{State: domain.ProcessingInProgress}
	consecutive := 0

	for {
		state, err := m.api.BuildStatus(ctx, req.TeamID, req.App, req.Ref)
		out.Polls++
		if errors.Is(err, ports.ErrNotFound) {
			state, err = domain.ProcessingInProgress, nil
		}

		if err != nil {
			consecutive++
			m.poll(req, out.Polls, "ERROR", err)
			switch {
			case ctx.Err() != nil:
				return out, domain.NewError(domain.ErrProcessingMonitoring, op, ctx.Err())
			case errors.Is(err, ports.ErrUnauthorized):
				return out, remoteError(domain.ErrProcessingMonitoring, op, err)
			case consecutive >= m.maxPollErrors:
				return out, domain.NewError(domain.ErrProcessingMonitoring, op,
					fmt.Errorf("%d consecutive poll failures: %w", consecutive, err))
			}
		} else {
			consecutive = 0
			out.State = state
			m.poll(req, out.Polls, state.String(), nil)
			if state.IsTerminal() {
				out.Elapsed = clk.Since(start)
				m.finish(req, out)
				return out, nil
			}
		}

		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			out.TimedOut = true
			out.Elapsed = clk.Since(start)
			m.finish(req, out)
			return out, nil
		}
		wait := min(req.PollInterval, remaining)

		t := clk.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return out, domain.NewError(domain.ErrProcessingMonitoring, op, ctx.Err())
		case <-t.C():
		}
	}
}

func (m *ProcessingMonitor) poll(req WatchRequest, n int, status string, err error) {
	m.env.Metrics.Poll(status)
	e := audit.Event{
		Kind:    audit.KindProcessingPoll,
		App:     req.App.String(),
		Version: req.Ref.Version.String(),
		Build:   req.Ref.Build.String(),
		Status:  status,
		Detail:  map[string]string{"poll": fmt.Sprint(n)},
	}
	if err != nil {
		e.Level = audit.LevelWarn
		e.Detail["error"] = err.Error()
	}
	m.env.Audit.Record(e)
}

func (m *ProcessingMonitor) finish(req WatchRequest, out domain.ProcessingOutcome) {
	e := audit.Event{
		Kind:    audit.KindProcessing,
		App:     req.App.String(),
		Version: req.Ref.Version.String(),
		Build:   req.Ref.Build.String(),
		Status:  out.State.String(),
		Detail:  map[string]string{"polls": fmt.Sprint(out.Polls), "elapsed": out.Elapsed.String()},
	}
	switch {
	case out.TimedOut:
		e.Level, e.Status = audit.LevelWarn, "TIMED_OUT"
		e.Detail["last_state"] = out.State.String()
	case out.State == domain.ProcessingInvalid:
		e.Level = audit.LevelError
	}
	m.env.Audit.Record(e)
}
