package app

import (
	"context"
	"fmt"

	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// BuildOrchestrator runs the build tool and checks that the artifact carries
// the resolved build number.
type BuildOrchestrator struct {
	tool      ports.BuildTool
	inspector ports.ArtifactInspector
	env       Env
}

// NewBuildOrchestrator wires an orchestrator.
func NewBuildOrchestrator(tool ports.BuildTool, inspector ports.ArtifactInspector, env Env) *BuildOrchestrator {
	return &BuildOrchestrator{tool: tool, inspector: inspector, env: env.withDefaults()}
}

// Build produces the signed artifact for req.
func (b *BuildOrchestrator) Build(ctx context.Context, req ports.BuildRequest) (ports.BuildResult, error) {
	res, err := b.tool.Build(ctx, req)
	if err != nil {
		b.env.Audit.Record(audit.Event{
			Level:   audit.LevelError,
			Kind:    audit.KindBuild,
			App:     req.AppIdentifier.String(),
			Version: req.Version.String(),
			Build:   req.Build.String(),
			Status:  "FAILED",
			Detail:  map[string]string{"error": err.Error()},
		})
		return ports.BuildResult{}, fmt.Errorf("build %s: %w", req.Scheme, err)
	}

	info, err := b.inspector.Inspect(ctx, res.ArtifactPath)
	if err != nil {
		return ports.BuildResult{}, domain.NewError(domain.ErrInvalidIpa, "inspect build output", err)
	}
	if info.Build != req.Build.String() {
		return ports.BuildResult{}, domain.NewError(domain.ErrBuildConflict, "verify build number",
			fmt.Errorf("artifact has build %q, resolved %d", info.Build, req.Build))
	}

	b.env.Audit.Record(audit.Event{
		Kind:    audit.KindBuild,
		App:     req.AppIdentifier.String(),
		Version: req.Version.String(),
		Build:   req.Build.String(),
		Status:  "BUILT",
		Detail:  map[string]string{"artifact": res.ArtifactPath, "configuration": req.Configuration},
	})
	return res, nil
}
