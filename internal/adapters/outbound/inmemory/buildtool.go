package inmemory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sufield/signet/internal/adapters/outbound/ipa"
	"github.com/sufield/signet/internal/ports"
)

// BuildTool writes an .ipa whose Info.plist reflects the request.
type BuildTool struct {
	mu       sync.Mutex
	requests []ports.BuildRequest

	// Fail, when set, is returned by the next Build call.
	Fail error
	// BundleOverride replaces the bundle identifier written into the archive.
	BundleOverride string
	// BuildOverride replaces CFBundleVersion written into the archive.
	BuildOverride string
	// Unsigned omits the code signature.
	Unsigned bool
}

var _ ports.BuildTool = (*BuildTool)(nil)

func (b *BuildTool) Build(ctx context.Context, req ports.BuildRequest) (ports.BuildResult, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	fail := b.Fail
	b.Fail = nil
	b.mu.Unlock()

	if fail != nil {
		return ports.BuildResult{}, fail
	}
	if err := ctx.Err(); err != nil {
		return ports.BuildResult{}, err
	}

	dir := req.OutputDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ports.BuildResult{}, err
	}

	m := ipa.Manifest{
		Name:             req.Scheme,
		BundleIdentifier: req.AppIdentifier.String(),
		Version:          req.Version.String(),
		Build:            req.Build.String(),
		Signed:           !b.Unsigned,
		Profile:          []byte(req.ProfileUUID),
	}
	if b.BundleOverride != "" {
		m.BundleIdentifier = b.BundleOverride
	}
	if b.BuildOverride != "" {
		m.Build = b.BuildOverride
	}
	out := filepath.Join(dir, fmt.Sprintf("%s-%s.ipa", req.Scheme, req.Build))
	if err := ipa.Write(out, m); err != nil {
		return ports.BuildResult{}, err
	}
	return ports.BuildResult{ArtifactPath: out}, nil
}

// Requests returns every build request received.
func (b *BuildTool) Requests() []ports.BuildRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ports.BuildRequest(nil), b.requests...)
}
