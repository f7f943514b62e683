package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/domain"
)

func TestContainer_HappyPath(t *testing.T) {
	t.Parallel()

	c := domain.NewContainer("signet-run", "/tmp/signet-run.keychain-db", "run")
	assert.Equal(t, domain.ContainerCreated, c.State())

	for _, next := range []domain.ContainerState{
		domain.ContainerUnlocked,
		domain.ContainerPopulated,
		domain.ContainerPopulated,
		domain.ContainerInUse,
		domain.ContainerCleaned,
	} {
		require.NoError(t, c.Transition(next))
	}
	assert.True(t, c.IsCleaned())
	assert.Len(t, c.History(), 6)
}

func TestContainer_FailurePath(t *testing.T) {
	t.Parallel()

	c := domain.NewContainer("n", "p", "s")
	require.NoError(t, c.Transition(domain.ContainerFailed))
	require.NoError(t, c.Transition(domain.ContainerCleaned))
	assert.Equal(t, []domain.ContainerState{domain.ContainerCreated, domain.ContainerFailed, domain.ContainerCleaned}, c.History())
}

func TestContainer_InvalidTransitions(t *testing.T) {
	t.Parallel()

	c := domain.NewContainer("n", "p", "s")
	assert.ErrorIs(t, c.Transition(domain.ContainerInUse), domain.ErrInvalidTransition)

	require.NoError(t, c.Transition(domain.ContainerCleaned))
	assert.ErrorIs(t, c.Transition(domain.ContainerCleaned), domain.ErrInvalidTransition)
	assert.ErrorIs(t, c.Transition(domain.ContainerUnlocked), domain.ErrInvalidTransition)
}
