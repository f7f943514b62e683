package keyring

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/sufield/signet/internal/ports"
)

func TestStore(t *testing.T) {
	gokeyring.MockInit()
	s := New("")

	_, err := s.Password("ABCDE12345")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, s.StorePassword("ABCDE12345", "pw1"))
	require.NoError(t, s.StorePassword("ZZZZZ99999", "pw2"))
	got, err := s.Password("ABCDE12345")
	require.NoError(t, err)
	assert.Equal(t, "pw1", got)

	require.NoError(t, s.Delete("ABCDE12345"))
	require.NoError(t, s.Delete("ABCDE12345"))
	_, err = s.Password("ABCDE12345")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	got, err = s.Password("ZZZZZ99999")
	require.NoError(t, err)
	assert.Equal(t, "pw2", got)
}

func TestStore_BackendError(t *testing.T) {
	gokeyring.MockInitWithError(gokeyring.ErrUnsupportedPlatform)
	t.Cleanup(gokeyring.MockInit)
	_, err := New("signet-test").Password("ABCDE12345")
	assert.ErrorIs(t, err, gokeyring.ErrUnsupportedPlatform)
	assert.NotErrorIs(t, err, ports.ErrNotFound)
}

func TestPrompt_RequiresTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()
	_, err = Prompt(f, os.Stderr, "Keychain password")
	assert.ErrorIs(t, err, ErrNotTerminal)
}
