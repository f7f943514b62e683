package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/domain"
)

func TestParseMarketingVersion(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"1", "1.2", "2.0.0", "2.0.0-beta.1"} {
		_, err := domain.ParseMarketingVersion(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "v1.0", "1.2.3.4", "1..2", "1.0-", "a.b"} {
		_, err := domain.ParseMarketingVersion(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidVersion, bad)
	}
}

func TestParseBuildNumber(t *testing.T) {
	t.Parallel()

	b, err := domain.ParseBuildNumber("41")
	require.NoError(t, err)
	assert.Equal(t, domain.BuildNumber(42), b.Next())

	b, err = domain.ParseBuildNumber("")
	require.NoError(t, err)
	assert.Zero(t, b)

	_, err = domain.ParseBuildNumber("-3")
	assert.ErrorIs(t, err, domain.ErrInvalidBuildNumber)
}

func TestMaxBuild(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.BuildNumber(41), domain.MaxBuild(5, 41, 0))
	assert.Zero(t, domain.MaxBuild())
}

func TestParseBumpMode(t *testing.T) {
	t.Parallel()

	m, err := domain.ParseBumpMode("")
	require.NoError(t, err)
	assert.Equal(t, domain.BumpAuto, m)

	m, err = domain.ParseBumpMode("SYNC")
	require.NoError(t, err)
	assert.Equal(t, domain.BumpSync, m)

	_, err = domain.ParseBumpMode("huge")
	assert.Error(t, err)
}

func TestParseProcessingState(t *testing.T) {
	t.Parallel()

	s, err := domain.ParseProcessingState("uploaded")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingInProgress, s)
	assert.False(t, s.IsTerminal())

	s, err = domain.ParseProcessingState("VALID")
	require.NoError(t, err)
	assert.True(t, s.IsTerminal())
}
