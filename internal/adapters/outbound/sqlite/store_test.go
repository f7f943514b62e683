package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/adapters/outbound/sqlite"
	"github.com/sufield/signet/internal/domain"
)

const team = domain.TeamID("ABCDE12345")

var app = domain.MustAppIdentifier("com.acme.app")

func TestHighWaterMark_NeverDecreases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlite.OpenTestDB(t)

	hwm, err := s.HighWaterMark(ctx, team, app)
	require.NoError(t, err)
	assert.Zero(t, hwm)

	for _, b := range []domain.BuildNumber{3, 7, 5} {
		require.NoError(t, s.RecordBuild(ctx, team, app, "1.0", b))
	}
	hwm, err = s.HighWaterMark(ctx, team, app)
	require.NoError(t, err)
	assert.Equal(t, domain.BuildNumber(7), hwm)

	other, err := s.HighWaterMark(ctx, team, domain.MustAppIdentifier("com.acme.other"))
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestDeployments_NewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlite.OpenTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []string{domain.OutcomeSucceeded, domain.OutcomeFailed, domain.OutcomeSucceeded} {
		require.NoError(t, s.AppendDeployment(ctx, domain.DeploymentRecord{
			RunID:         string(rune('a' + i)),
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			TeamID:        team,
			AppIdentifier: app.String(),
			Version:       "2.0.0",
			Build:         domain.BuildNumber(40 + i),
			Outcome:       outcome,
			Stages:        []domain.StageDuration{{Stage: "build", Duration: 1500 * time.Millisecond}},
			Total:         3 * time.Second,
		}))
	}

	recs, err := s.RecentDeployments(ctx, team, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].RunID)
	assert.Equal(t, domain.BuildNumber(42), recs[0].Build)
	assert.Equal(t, "b", recs[1].RunID)
	assert.Equal(t, domain.OutcomeFailed, recs[1].Outcome)
	assert.Equal(t, []domain.StageDuration{{Stage: "build", Duration: 1500 * time.Millisecond}}, recs[0].Stages)
	assert.Equal(t, 3*time.Second, recs[0].Total)

	err = s.AppendDeployment(ctx, domain.DeploymentRecord{RunID: "a", TeamID: team, Timestamp: base, Outcome: domain.OutcomeFailed})
	assert.Error(t, err, "records are append-only")
}

func TestStrategyStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlite.OpenTestDB(t)

	require.NoError(t, s.RecordUploadAttempt(ctx, "altool", false))
	require.NoError(t, s.RecordUploadAttempt(ctx, "altool", true))
	require.NoError(t, s.RecordUploadAttempt(ctx, "api", true))

	stats, err := s.StrategyStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "altool", stats[0].Name)
	assert.Equal(t, 1, stats[0].Successes)
	assert.Equal(t, 1, stats[0].Failures)
	assert.Equal(t, "api", stats[1].Name)
	assert.Equal(t, 1, stats[1].Successes)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "signet.db")

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.RecordBuild(ctx, team, app, "1.0", 12))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	hwm, err := s.HighWaterMark(ctx, team, app)
	require.NoError(t, err)
	assert.Equal(t, domain.BuildNumber(12), hwm)
}
