package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MarketingVersion is the user-facing version: major[.minor[.patch]] with an
// optional prerelease suffix.
type MarketingVersion string

// ParseMarketingVersion validates s.
func ParseMarketingVersion(s string) (MarketingVersion, error) {
	s = strings.TrimSpace(s)
	core, pre, hasPre := strings.Cut(s, "-")
	if hasPre && pre == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	parts := strings.Split(core, ".")
	if core == "" || len(parts) > 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
	}
	return MarketingVersion(s), nil
}

func (v MarketingVersion) String() string { return string(v) }

// BuildNumber is the strictly increasing internal build counter.
// Zero means "no build known".
type BuildNumber int

// ParseBuildNumber parses a non-negative integer build number.
func ParseBuildNumber(s string) (BuildNumber, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBuildNumber, s)
	}
	return BuildNumber(n), nil
}

// Next returns the following build number.
func (b BuildNumber) Next() BuildNumber { return b + 1 }

func (b BuildNumber) String() string { return strconv.Itoa(int(b)) }

// MaxBuild returns the largest of the given build numbers.
func MaxBuild(builds ...BuildNumber) BuildNumber {
	var m BuildNumber
	for _, b := range builds {
		if b > m {
			m = b
		}
	}
	return m
}

// BumpMode selects how the marketing version changes for a deployment.
type BumpMode string

const (
	BumpPatch BumpMode = "patch"
	BumpMinor BumpMode = "minor"
	BumpMajor BumpMode = "major"
	BumpAuto  BumpMode = "auto"
	BumpSync  BumpMode = "sync"
)

// ParseBumpMode validates s; empty means BumpAuto.
func ParseBumpMode(s string) (BumpMode, error) {
	m := BumpMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return BumpAuto, nil
	case BumpPatch, BumpMinor, BumpMajor, BumpAuto, BumpSync:
		return m, nil
	}
	return "", fmt.Errorf("%w: bump mode %q", ErrInvalidKind, s)
}

// Application is an app of a team with its local version state.
type Application struct {
	Identifier AppIdentifier
	TeamID     TeamID
	Version    MarketingVersion
	Build      BuildNumber
}

// VersionResolution is the outcome of reconciling local and remote versions.
type VersionResolution struct {
	Version         MarketingVersion
	Build           BuildNumber
	RemoteVersion   MarketingVersion
	RemoteBuild     BuildNumber
	HighWaterMark   BuildNumber
	LocallyResolved bool
}
