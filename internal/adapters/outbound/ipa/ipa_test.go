package ipa_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/adapters/outbound/ipa"
)

func TestInspect_RoundTrip(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "App.ipa")
	require.NoError(t, ipa.Write(p, ipa.Manifest{
		Name:             "Example",
		BundleIdentifier: "com.example.app",
		Version:          "2.0.0",
		Build:            "42",
		Signed:           true,
		Profile:          []byte("profile"),
	}))

	info, err := ipa.Inspector{}.Inspect(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", info.BundleIdentifier)
	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "42", info.Build)
	assert.True(t, info.Signed)
	assert.True(t, info.EmbeddedProfile)
}

func TestInspect_Unsigned(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "App.ipa")
	require.NoError(t, ipa.Write(p, ipa.Manifest{BundleIdentifier: "com.example.app", Version: "1.0", Build: "1"}))

	info, err := ipa.Inspector{}.Inspect(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, info.Signed)
	assert.False(t, info.EmbeddedProfile)
}

func TestInspect_NotAnArchive(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "junk.ipa")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0o644))
	_, err := ipa.Inspector{}.Inspect(context.Background(), p)
	assert.Error(t, err)

	_, err = ipa.Inspector{}.Inspect(context.Background(), filepath.Join(t.TempDir(), "missing.ipa"))
	assert.Error(t, err)
}
