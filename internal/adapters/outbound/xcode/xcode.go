// Package xcode is the BuildTool adapter over xcodebuild. A build is an
// archive step followed by an export step driven by a generated
// ExportOptions.plist. Signing is manual and pinned to the run's keychain,
// certificate and profile.
package xcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"howett.net/plist"

	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/ports"
)

// Config locates the project to build. Exactly one of Workspace and
// Project is normally set; with neither, xcodebuild picks the project in Dir.
type Config struct {
	Workspace string
	Project   string
	Dir       string
}

// Builder runs xcodebuild.
type Builder struct {
	cfg    Config
	runner toolexec.Runner
	logger *slog.Logger
}

var _ ports.BuildTool = (*Builder)(nil)

func New(cfg Config, runner toolexec.Runner, logger *slog.Logger) *Builder {
	return &Builder{cfg: cfg, runner: runner, logger: logging.OrDiscard(logger).With("component", "xcode")}
}

// ExportOptions is the plist consumed by xcodebuild -exportArchive.
type ExportOptions struct {
	Method               string            `plist:"method"`
	TeamID               string            `plist:"teamID"`
	SigningStyle         string            `plist:"signingStyle"`
	SigningCertificate   string            `plist:"signingCertificate,omitempty"`
	ProvisioningProfiles map[string]string `plist:"provisioningProfiles"`
	UploadSymbols        bool              `plist:"uploadSymbols"`
	Destination          string            `plist:"destination"`
	StripSwiftSymbols    bool              `plist:"stripSwiftSymbols"`
}

func exportOptions(req ports.BuildRequest) ExportOptions {
	profile := req.ProfileName
	if profile == "" {
		profile = req.ProfileUUID
	}
	return ExportOptions{
		Method:               req.ProfileKind.ExportMethod(),
		TeamID:               req.TeamID.String(),
		SigningStyle:         "manual",
		SigningCertificate:   req.CertificateName,
		ProvisioningProfiles: map[string]string{req.AppIdentifier.String(): profile},
		UploadSymbols:        true,
		Destination:          "export",
		StripSwiftSymbols:    true,
	}
}

func (b *Builder) archiveArgs(req ports.BuildRequest, archivePath string) []string {
	var args []string
	switch {
	case b.cfg.Workspace != "":
		args = append(args, "-workspace", b.cfg.Workspace)
	case b.cfg.Project != "":
		args = append(args, "-project", b.cfg.Project)
	}
	args = append(args,
		"-scheme", req.Scheme,
		"-configuration", req.Configuration,
		"-destination", "generic/platform=iOS",
		"-archivePath", archivePath,
		"archive",
		"CODE_SIGN_STYLE=Manual",
		"DEVELOPMENT_TEAM="+req.TeamID.String(),
		"PRODUCT_BUNDLE_IDENTIFIER="+req.AppIdentifier.String(),
		"MARKETING_VERSION="+req.Version.String(),
		"CURRENT_PROJECT_VERSION="+req.Build.String(),
	)
	if req.CertificateName != "" {
		args = append(args, "CODE_SIGN_IDENTITY="+req.CertificateName)
	}
	if req.ProfileUUID != "" {
		args = append(args, "PROVISIONING_PROFILE_SPECIFIER="+req.ProfileUUID)
	}
	if req.KeychainPath != "" {
		// Points codesign at the run's container instead of the search list.
		args = append(args, "OTHER_CODE_SIGN_FLAGS=--keychain "+req.KeychainPath)
	}
	return args
}

// Build archives and exports req, returning the exported .ipa.
func (b *Builder) Build(ctx context.Context, req ports.BuildRequest) (ports.BuildResult, error) {
	if req.Scheme == "" {
		return ports.BuildResult{}, errors.New("xcode: scheme is required")
	}
	out := req.OutputDir
	if out == "" {
		out = filepath.Join(os.TempDir(), "signet-build")
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return ports.BuildResult{}, err
	}
	archivePath := filepath.Join(out, req.Scheme+".xcarchive")
	exportPath := filepath.Join(out, "export")

	b.logger.Info("archiving", "scheme", req.Scheme, "configuration", req.Configuration, "build", req.Build.String())
	if _, err := b.runner.Run(ctx, toolexec.Command{Name: "xcodebuild", Args: b.archiveArgs(req, archivePath), Dir: b.cfg.Dir}); err != nil {
		return ports.BuildResult{}, fmt.Errorf("xcodebuild archive: %w", err)
	}

	optionsPath := filepath.Join(out, "ExportOptions.plist")
	data, err := plist.MarshalIndent(exportOptions(req), plist.XMLFormat, "\t")
	if err != nil {
		return ports.BuildResult{}, fmt.Errorf("encode export options: %w", err)
	}
	if err := os.WriteFile(optionsPath, data, 0o644); err != nil {
		return ports.BuildResult{}, err
	}

	b.logger.Info("exporting", "method", req.ProfileKind.ExportMethod())
	_, err = b.runner.Run(ctx, toolexec.Command{
		Name: "xcodebuild",
		Args: []string{
			"-exportArchive",
			"-archivePath", archivePath,
			"-exportPath", exportPath,
			"-exportOptionsPlist", optionsPath,
		},
		Dir: b.cfg.Dir,
	})
	if err != nil {
		return ports.BuildResult{}, fmt.Errorf("xcodebuild -exportArchive: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(exportPath, "*.ipa"))
	if err != nil {
		return ports.BuildResult{}, err
	}
	switch len(matches) {
	case 0:
		return ports.BuildResult{}, fmt.Errorf("xcode: no .ipa in %s", exportPath)
	case 1:
		return ports.BuildResult{ArtifactPath: matches[0]}, nil
	default:
		return ports.BuildResult{}, fmt.Errorf("xcode: %d .ipa files in %s", len(matches), exportPath)
	}
}
