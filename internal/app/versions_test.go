package app_test

import (
	"context"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/app"
	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// MockBuilds is a mock implementation of ports.BuildAPI.
type MockBuilds struct {
	mock.Mock
}

func (m *MockBuilds) LatestBuild(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) (ports.RemoteBuild, error) {
	args := m.Called(team, app)
	return args.Get(0).(ports.RemoteBuild), args.Error(1)
}

// MockMarks is a mock implementation of ports.HighWaterMarks.
type MockMarks struct {
	mock.Mock
}

func (m *MockMarks) HighWaterMark(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) (domain.BuildNumber, error) {
	args := m.Called(team, app)
	return args.Get(0).(domain.BuildNumber), args.Error(1)
}

func (m *MockMarks) RecordBuild(ctx context.Context, team domain.TeamID, app domain.AppIdentifier, version domain.MarketingVersion, build domain.BuildNumber) error {
	return m.Called(team, app, version, build).Error(0)
}

func TestVersionResolver_Build(t *testing.T) {
	t.Parallel()
	notFound := fmt.Errorf("no builds: %w", ports.ErrNotFound)
	down := fmt.Errorf("%w: connection reset", ports.ErrTransient)

	tests := []struct {
		name           string
		local          domain.BuildNumber
		hwm            domain.BuildNumber
		remote         ports.RemoteBuild
		remoteErr      error
		explicit       domain.BuildNumber
		allowConflicts bool
		want           domain.BuildNumber
		wantLocal      bool
		wantErr        error
	}{
		{name: "first deployment", remoteErr: notFound, want: 1},
		{name: "remote ahead of local", local: 10, remote: ports.RemoteBuild{Version: "2.0.0", Build: 41}, want: 42},
		{name: "local ahead of remote", local: 50, remote: ports.RemoteBuild{Build: 41}, want: 51},
		{name: "high-water mark ahead", local: 10, hwm: 60, remote: ports.RemoteBuild{Build: 41}, want: 61},
		{name: "explicit above maximum", remote: ports.RemoteBuild{Build: 41}, explicit: 100, want: 100},
		{name: "explicit conflict", remote: ports.RemoteBuild{Build: 41}, explicit: 41, wantErr: domain.ErrBuildConflict},
		{name: "explicit conflict allowed", remote: ports.RemoteBuild{Build: 41}, explicit: 5, allowConflicts: true, want: 42},
		{name: "remote unreachable", local: 7, remoteErr: down, want: 8, wantLocal: true},
		{name: "remote rejects credential", local: 5, remoteErr: fmt.Errorf("%w: 401", ports.ErrUnauthorized), want: 6, wantLocal: true},
		{name: "remote rejects credential uses high-water mark", local: 5, hwm: 9, remoteErr: ports.ErrUnauthorized, want: 10, wantLocal: true},
		{name: "remote unreachable uses high-water mark", local: 7, hwm: 20, remoteErr: down, want: 21, wantLocal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			builds := new(MockBuilds)
			builds.On("LatestBuild", team, appID).Return(tt.remote, tt.remoteErr)
			marks := new(MockMarks)
			marks.On("HighWaterMark", team, appID).Return(tt.hwm, nil)
			marks.On("RecordBuild", team, appID, mock.Anything, mock.Anything).Return(nil).Maybe()

			log := audit.New(nil, nil)
			r := app.NewVersionResolver(builds, marks, nil, tt.allowConflicts, app.Env{Audit: log, Retry: fastRetry()})
			res, err := r.Resolve(context.Background(), app.VersionRequest{
				TeamID: team, App: appID, LocalVersion: "2.0.0", LocalBuild: tt.local, ExplicitBuild: tt.explicit,
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				marks.AssertNotCalled(t, "RecordBuild", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Build)
			assert.Equal(t, tt.wantLocal, res.LocallyResolved)
			marks.AssertCalled(t, "RecordBuild", team, appID, domain.MarketingVersion("2.0.0"), tt.want)

			events := log.Kind(audit.KindVersionResolved)
			require.Len(t, events, 1)
			if tt.wantLocal {
				assert.Equal(t, "LOCAL_FALLBACK", events[0].Status)
			}
		})
	}
}

func TestVersionResolver_BumpModes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode   domain.BumpMode
		local  domain.MarketingVersion
		remote domain.MarketingVersion
		want   domain.MarketingVersion
	}{
		{domain.BumpAuto, "1.2.3", "1.0.0", "1.2.3"},
		{domain.BumpPatch, "1.2.3", "", "1.2.4"},
		{domain.BumpMinor, "1.2.3", "", "1.3.0"},
		{domain.BumpMajor, "1.2.3", "", "2.0.0"},
		{domain.BumpPatch, "2.0", "", "2.0.1"},
		{domain.BumpSync, "1.2.3", "1.4.0", "1.4.1"},
		{domain.BumpSync, "2.0.0", "1.4.0", "2.0.0"},
		{domain.BumpSync, "1.2.3", "", "1.2.3"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s remote %q", tt.mode, tt.local, tt.remote), func(t *testing.T) {
			t.Parallel()
			builds := new(MockBuilds)
			if tt.remote == "" {
				builds.On("LatestBuild", team, appID).Return(ports.RemoteBuild{}, ports.ErrNotFound)
			} else {
				builds.On("LatestBuild", team, appID).Return(ports.RemoteBuild{Version: tt.remote, Build: 3}, nil)
			}
			r := app.NewVersionResolver(builds, nil, nil, false, app.Env{Retry: fastRetry()})
			res, err := r.Resolve(context.Background(), app.VersionRequest{TeamID: team, App: appID, LocalVersion: tt.local, Mode: tt.mode})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Version)
		})
	}
}

func TestVersionResolver_RejectsInvalidLocalVersion(t *testing.T) {
	t.Parallel()
	r := app.NewVersionResolver(new(MockBuilds), nil, nil, false, app.Env{Retry: fastRetry()})
	_, err := r.Resolve(context.Background(), app.VersionRequest{TeamID: team, App: appID, LocalVersion: "v-one"})
	require.ErrorIs(t, err, domain.ErrInvalidVersion)
}

// Consecutive resolutions sharing a ledger strictly increase even when the
// remote and local state lag behind.
func TestVersionResolver_StrictlyIncreasing(t *testing.T) {
	t.Parallel()
	property := func(locals []uint8, remote uint8) bool {
		builds := new(MockBuilds)
		builds.On("LatestBuild", team, appID).Return(ports.RemoteBuild{Build: domain.BuildNumber(remote)}, nil)
		r := app.NewVersionResolver(builds, nil, app.NewBuildLedger(), false, app.Env{Retry: fastRetry()})

		var prev domain.BuildNumber
		for _, l := range locals {
			res, err := r.Resolve(context.Background(), app.VersionRequest{
				TeamID: team, App: appID, LocalVersion: "1.0.0", LocalBuild: domain.BuildNumber(l),
			})
			if err != nil || res.Build <= prev || res.Build <= domain.BuildNumber(remote) || res.Build <= domain.BuildNumber(l) {
				return false
			}
			prev = res.Build
		}
		return true
	}
	require.NoError(t, quick.Check(property, nil))
}
