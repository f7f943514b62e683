package connectapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

type buildAttributes struct {
	Version         string `json:"version"`
	UploadedDate    string `json:"uploadedDate,omitempty"`
	ProcessingState string `json:"processingState,omitempty"`
}

type preReleaseVersionAttributes struct {
	Version string `json:"version"`
}

// recentBuilds bounds how many builds LatestBuild inspects. Build numbers
// are compared numerically because the remote sorts them as strings.
const recentBuilds = 50

func (c *Client) LatestBuild(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) (ports.RemoteBuild, error) {
	appID, err := c.appID(ctx, app)
	if err != nil {
		return ports.RemoteBuild{}, err
	}
	q := url.Values{}
	q.Set("filter[app]", appID)
	q.Set("sort", "-uploadedDate")
	q.Set("include", "preReleaseVersion")
	q.Set("limit", strconv.Itoa(recentBuilds))

	var doc listDocument
	if err := c.do(ctx, http.MethodGet, c.endpoint("/v1/builds", q), nil, &doc); err != nil {
		return ports.RemoteBuild{}, err
	}

	var (
		latest ports.RemoteBuild
		found  bool
	)
	for _, r := range doc.Data {
		attrs, err := decodeAttributes[buildAttributes](r)
		if err != nil {
			return ports.RemoteBuild{}, err
		}
		n, err := domain.ParseBuildNumber(attrs.Version)
		if err != nil {
			c.logger.Warn("skipping build with non-numeric version", "id", r.ID, "version", attrs.Version)
			continue
		}
		if found && n <= latest.Build {
			continue
		}
		found = true
		latest = ports.RemoteBuild{Build: n, UploadedAt: parseTime(attrs.UploadedDate)}
		if ids := r.Relationships["preReleaseVersion"].ids(); len(ids) == 1 {
			if pr, ok := findIncluded(doc.Included, "preReleaseVersions", ids[0]); ok {
				pa, err := decodeAttributes[preReleaseVersionAttributes](pr)
				if err != nil {
					return ports.RemoteBuild{}, err
				}
				latest.Version = domain.MarketingVersion(pa.Version)
			}
		}
	}
	if !found {
		return ports.RemoteBuild{}, fmt.Errorf("builds for %s: %w", app, ports.ErrNotFound)
	}
	return latest, nil
}

func (c *Client) BuildStatus(ctx context.Context, team domain.TeamID, app domain.AppIdentifier, ref ports.BuildRef) (domain.ProcessingState, error) {
	appID, err := c.appID(ctx, app)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("filter[app]", appID)
	q.Set("filter[version]", ref.Build.String())
	q.Set("filter[preReleaseVersion.version]", ref.Version.String())
	q.Set("fields[builds]", "version,processingState")

	var doc listDocument
	if err := c.do(ctx, http.MethodGet, c.endpoint("/v1/builds", q), nil, &doc); err != nil {
		return "", err
	}
	if len(doc.Data) == 0 {
		return "", fmt.Errorf("build %s (%d): %w", ref.Version, ref.Build, ports.ErrNotFound)
	}
	attrs, err := decodeAttributes[buildAttributes](doc.Data[0])
	if err != nil {
		return "", err
	}
	return domain.ParseProcessingState(attrs.ProcessingState)
}
