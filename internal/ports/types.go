package ports

import (
	"time"

	"github.com/sufield/signet/internal/domain"
)

// APICredentials identify the private-key API credential for a team.
type APICredentials struct {
	KeyID    string
	IssuerID string
	KeyPath  string
	AppleID  string
}

// IssuedCertificate is a freshly created remote certificate with its DER body.
type IssuedCertificate struct {
	Certificate domain.Certificate
	DER         []byte
}

// ProfileRequest describes a provisioning profile to create.
type ProfileRequest struct {
	Name           string
	Kind           domain.ProfileKind
	TeamID         domain.TeamID
	AppIdentifier  domain.AppIdentifier
	CertificateIDs []string
	DeviceIDs      []string
}

// RemoteBuild is the latest build the remote service knows for an app.
type RemoteBuild struct {
	Version    domain.MarketingVersion
	Build      domain.BuildNumber
	UploadedAt time.Time
}

// BuildRef identifies one uploaded build.
type BuildRef struct {
	Version domain.MarketingVersion
	Build   domain.BuildNumber
}

// UploadRequest is handed to every upload strategy.
type UploadRequest struct {
	ArtifactPath  string
	TeamID        domain.TeamID
	AppIdentifier domain.AppIdentifier
	Version       domain.MarketingVersion
	Build         domain.BuildNumber
	Credentials   APICredentials
}

// UploadReceipt is returned by a successful strategy.
type UploadReceipt struct {
	Strategy   string
	DeliveryID string
}

// BuildRequest is what the external build tool needs to produce a signed artifact.
type BuildRequest struct {
	Scheme          string
	Configuration   string
	TeamID          domain.TeamID
	AppIdentifier   domain.AppIdentifier
	Version         domain.MarketingVersion
	Build           domain.BuildNumber
	ProfileKind     domain.ProfileKind
	ProfileName     string
	ProfileUUID     string
	CertificateName string
	KeychainPath    string
	OutputDir       string
}

// BuildResult locates the produced artifact.
type BuildResult struct {
	ArtifactPath string
}

// ArtifactInfo is what an artifact inspector reads out of a package.
type ArtifactInfo struct {
	BundleIdentifier string
	Version          string
	Build            string
	Signed           bool
	EmbeddedProfile  bool
}

// StrategyStat is the persisted reliability history of one upload strategy.
type StrategyStat struct {
	Name      string
	Successes int
	Failures  int
	LastUsed  time.Time
}

// KeyPairFile is an exported certificate key pair on disk.
type KeyPairFile struct {
	CertificateID string
	Path          string
}

// DeploymentConfig mirrors a team's config.env.
type DeploymentConfig struct {
	TeamID                   string
	AppIdentifier            string
	AppleID                  string
	APIKeyID                 string
	APIIssuerID              string
	Scheme                   string
	MarketingVersion         string
	BuildNumber              string
	LastDeployedVersion      string
	LastDeployedBuild        string
	LastDeployedAt           string
	APICreatedCertificateIDs []string
	// Extra holds keys this tool does not manage; they are written back untouched.
	Extra map[string]string
}
