package xcode_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/adapters/outbound/xcode"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

func buildRequest(out string) ports.BuildRequest {
	return ports.BuildRequest{
		Scheme:          "Acme",
		Configuration:   "Release",
		TeamID:          "ABCDE12345",
		AppIdentifier:   domain.MustAppIdentifier("com.acme.app"),
		Version:         domain.MarketingVersion("2.0.0"),
		Build:           43,
		ProfileKind:     domain.ProfileAppStore,
		ProfileName:     "com.acme.app AppStore",
		ProfileUUID:     "9c0f6a8e-1111-2222-3333-444455556666",
		CertificateName: "Apple Distribution: Acme (ABCDE12345)",
		KeychainPath:    "/tmp/signet-run.keychain-db",
		OutputDir:       out,
	}
}

// exporter drops an .ipa where -exportArchive would.
func exporter(t *testing.T, ipas ...string) *toolexec.Script {
	return &toolexec.Script{Handle: func(cmd toolexec.Command) (toolexec.Result, error) {
		if cmd.Args[0] != "-exportArchive" {
			return toolexec.Result{}, nil
		}
		dir := cmd.Args[4]
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, name := range ipas {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("PK"), 0o644))
		}
		return toolexec.Result{}, nil
	}}
}

func TestBuild_ArchivesAndExports(t *testing.T) {
	t.Parallel()
	out := t.TempDir()
	script := exporter(t, "Acme.ipa")
	b := xcode.New(xcode.Config{Workspace: "Acme.xcworkspace", Dir: "/src"}, script, nil)

	res, err := b.Build(context.Background(), buildRequest(out))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "export", "Acme.ipa"), res.ArtifactPath)

	calls := script.Calls()
	require.Len(t, calls, 2)
	archive := calls[0]
	assert.Equal(t, "xcodebuild", archive.Name)
	assert.Equal(t, "/src", archive.Dir)
	assert.Equal(t, []string{"-workspace", "Acme.xcworkspace"}, archive.Args[:2])
	for _, want := range []string{
		"archive",
		"CURRENT_PROJECT_VERSION=43",
		"MARKETING_VERSION=2.0.0",
		"PRODUCT_BUNDLE_IDENTIFIER=com.acme.app",
		"OTHER_CODE_SIGN_FLAGS=--keychain /tmp/signet-run.keychain-db",
		"CODE_SIGN_STYLE=Manual",
	} {
		assert.Contains(t, archive.Args, want)
	}

	data, err := os.ReadFile(filepath.Join(out, "ExportOptions.plist"))
	require.NoError(t, err)
	var opts xcode.ExportOptions
	_, err = plist.Unmarshal(data, &opts)
	require.NoError(t, err)
	assert.Equal(t, "app-store", opts.Method)
	assert.Equal(t, "manual", opts.SigningStyle)
	assert.Equal(t, map[string]string{"com.acme.app": "com.acme.app AppStore"}, opts.ProvisioningProfiles)
}

func TestBuild_ExportMethodFollowsProfileKind(t *testing.T) {
	t.Parallel()
	for kind, method := range map[domain.ProfileKind]string{
		domain.ProfileDevelopment: "development",
		domain.ProfileAdHoc:       "ad-hoc",
	} {
		out := t.TempDir()
		req := buildRequest(out)
		req.ProfileKind = kind
		_, err := xcode.New(xcode.Config{Project: "Acme.xcodeproj"}, exporter(t, "Acme.ipa"), nil).Build(context.Background(), req)
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(out, "ExportOptions.plist"))
		require.NoError(t, err)
		var opts xcode.ExportOptions
		_, err = plist.Unmarshal(data, &opts)
		require.NoError(t, err)
		assert.Equal(t, method, opts.Method)
	}
}

func TestBuild_Failures(t *testing.T) {
	t.Parallel()
	archiveErr := &toolexec.ExitError{Command: "xcodebuild", Code: 65, Stderr: "** ARCHIVE FAILED **"}
	tests := []struct {
		name   string
		script *toolexec.Script
		want   string
	}{
		{"archive fails", &toolexec.Script{Handle: func(toolexec.Command) (toolexec.Result, error) {
			return toolexec.Result{}, archiveErr
		}}, "ARCHIVE FAILED"},
		{"no ipa", exporter(t), "no .ipa"},
		{"ambiguous ipa", exporter(t, "a.ipa", "b.ipa"), "2 .ipa files"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := xcode.New(xcode.Config{}, tt.script, nil).Build(context.Background(), buildRequest(t.TempDir()))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestBuild_ToolMissing(t *testing.T) {
	t.Parallel()
	script := &toolexec.Script{Handle: func(toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{}, ports.ErrToolUnavailable
	}}
	_, err := xcode.New(xcode.Config{}, script, nil).Build(context.Background(), buildRequest(t.TempDir()))
	assert.True(t, errors.Is(err, ports.ErrToolUnavailable))
}
