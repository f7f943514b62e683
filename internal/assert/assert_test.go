//go:build debug

package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvariant(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() { Invariant(true, "fine") })
	require.PanicsWithValue(t, "INVARIANT VIOLATION: quota exceeded", func() {
		Invariant(false, "quota exceeded")
	})
}

func TestInvariantf(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() { Invariantf(true, "%d", 1) })
	require.PanicsWithValue(t, "INVARIANT VIOLATION: build 3 <= 5", func() {
		Invariantf(false, "build %d <= %d", 3, 5)
	})
}
