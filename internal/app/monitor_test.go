package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/app"
	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

var ref = ports.BuildRef{Version: "2.0.0", Build: 42}

func (f *fixture) watch(mon *app.ProcessingMonitor, req app.WatchRequest) (domain.ProcessingOutcome, error) {
	var (
		out domain.ProcessingOutcome
		err error
	)
	drive(f.clock, req.PollInterval, func() {
		out, err = mon.Watch(context.Background(), req)
	})
	return out, err
}

func watchRequest() app.WatchRequest {
	return app.WatchRequest{TeamID: team, App: appID, Ref: ref, MaxWait: 10 * time.Minute, PollInterval: time.Minute}
}

func TestMonitor_ReachesValid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.SetProcessing(3, domain.ProcessingValid)
	f.remote.Upload(team, appID, ref.Version, ref.Build)

	out, err := f.watch(app.NewProcessingMonitor(f.remote, 0, f.env), watchRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.ProcessingValid, out.State)
	assert.False(t, out.TimedOut)
	assert.Equal(t, 3, out.Polls)
	assert.Equal(t, 2*time.Minute, out.Elapsed)
	assert.Equal(t, []string{"PROCESSING", "PROCESSING", "VALID"}, statuses(f.audit.Kind(audit.KindProcessingPoll)))
	assert.Equal(t, []string{"VALID"}, statuses(f.audit.Kind(audit.KindProcessing)))
}

func TestMonitor_Invalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.SetProcessing(2, domain.ProcessingInvalid)
	f.remote.Upload(team, appID, ref.Version, ref.Build)

	out, err := f.watch(app.NewProcessingMonitor(f.remote, 0, f.env), watchRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingInvalid, out.State)
}

func TestMonitor_TimeoutIsNotAnError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.SetProcessing(0, domain.ProcessingValid)
	f.remote.Upload(team, appID, ref.Version, ref.Build)

	out, err := f.watch(app.NewProcessingMonitor(f.remote, 0, f.env), watchRequest())
	require.NoError(t, err)

	assert.True(t, out.TimedOut)
	assert.Equal(t, domain.ProcessingInProgress, out.State)
	assert.Equal(t, 11, out.Polls)
	assert.Equal(t, 10*time.Minute, out.Elapsed)
	final := f.audit.Kind(audit.KindProcessing)
	require.Len(t, final, 1)
	assert.Equal(t, "TIMED_OUT", final[0].Status)
}

func TestMonitor_UnknownBuildCountsAsProcessing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := watchRequest()
	req.MaxWait = 3 * time.Minute
	out, err := f.watch(app.NewProcessingMonitor(f.remote, 2, f.env), req)
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.Equal(t, 4, out.Polls)
}

func TestMonitor_ConsecutiveErrorsAbort(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.Upload(team, appID, ref.Version, ref.Build)
	busy := fmt.Errorf("%w: 500", ports.ErrTransient)
	f.remote.FailNext("BuildStatus", busy, busy, busy)

	_, err := f.watch(app.NewProcessingMonitor(f.remote, 3, f.env), watchRequest())
	require.ErrorIs(t, err, domain.ErrProcessingMonitoring)
	assert.Equal(t, 3, f.remote.Calls("BuildStatus"))
}

func TestMonitor_IntermittentErrorsTolerated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.SetProcessing(2, domain.ProcessingValid)
	f.remote.Upload(team, appID, ref.Version, ref.Build)
	f.remote.FailNext("BuildStatus", fmt.Errorf("%w: 500", ports.ErrTransient))

	out, err := f.watch(app.NewProcessingMonitor(f.remote, 2, f.env), watchRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingValid, out.State)
}

func TestMonitor_Cancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.SetProcessing(0, domain.ProcessingValid)
	f.remote.Upload(team, appID, ref.Version, ref.Build)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := app.NewProcessingMonitor(f.remote, 0, f.env).Watch(ctx, watchRequest())
		done <- err
	}()
	require.Eventually(t, f.clock.HasWaiters, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, domain.ErrProcessingMonitoring)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}
