package ports

import (
	"context"
	"crypto"

	"github.com/sufield/signet/internal/domain"
)

// CertificateAPI manages signing certificates on the remote service.
//
// Error Contract:
// - All methods return ErrUnauthorized when the API credential is rejected
// - All methods return ErrTransient for timeouts, rate limits and 5xx responses
// - CreateCertificate returns ErrConflict when the remote quota is full
// - RevokeCertificate returns ErrNotFound when the certificate no longer exists
type CertificateAPI interface {
	// ListCertificates returns every certificate of kind owned by team,
	// expired ones included.
	ListCertificates(ctx context.Context, team domain.TeamID, kind domain.CertificateKind) ([]domain.Certificate, error)

	// CreateCertificate signs a PEM-encoded CSR.
	CreateCertificate(ctx context.Context, team domain.TeamID, kind domain.CertificateKind, csrPEM []byte) (IssuedCertificate, error)

	RevokeCertificate(ctx context.Context, team domain.TeamID, id string) error
}

// ProfileAPI manages provisioning profiles, app identifiers and devices.
//
// Error Contract:
// - All methods return ErrUnauthorized / ErrTransient as CertificateAPI does
// - CreateProfile returns ErrConflict when a certificate or identifier is unusable
type ProfileAPI interface {
	ListProfiles(ctx context.Context, team domain.TeamID) ([]domain.ProvisioningProfile, error)
	CreateProfile(ctx context.Context, req ProfileRequest) (domain.ProvisioningProfile, error)

	// EnsureAppIdentifier registers app for team if it is not registered yet.
	EnsureAppIdentifier(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) error

	// ListDevices returns enabled device identifiers.
	ListDevices(ctx context.Context, team domain.TeamID) ([]string, error)
}

// BuildAPI answers version/build queries.
//
// Error Contract:
// - LatestBuild returns ErrNotFound when the app has no builds yet
type BuildAPI interface {
	LatestBuild(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) (RemoteBuild, error)
}

// ProcessingAPI reports the processing state of an uploaded build.
//
// Error Contract:
// - BuildStatus returns ErrNotFound while the build is not yet visible remotely;
//   callers treat that as PROCESSING
type ProcessingAPI interface {
	BuildStatus(ctx context.Context, team domain.TeamID, app domain.AppIdentifier, ref BuildRef) (domain.ProcessingState, error)
}

// RemoteService is the full remote collaborator.
type RemoteService interface {
	CertificateAPI
	ProfileAPI
	BuildAPI
	ProcessingAPI
}

// RemoteFactory builds a remote client bound to one API credential.
type RemoteFactory func(ctx context.Context, creds APICredentials) (RemoteService, error)

// UploadStrategy is one way of delivering an artifact.
//
// Error Contract:
// - Upload returns ErrTransient for failures worth retrying
// - Upload returns ErrUnauthorized when the credential is rejected
// - Upload returns ErrToolUnavailable when the strategy cannot run on this host
type UploadStrategy interface {
	Name() string
	Upload(ctx context.Context, req UploadRequest) (UploadReceipt, error)
}

// SecurityBackend owns the on-host credential container format.
// Every call names the container explicitly; no backend mutates a global
// keychain search list.
//
// Error Contract:
// - CreateContainer fails if path already exists
// - DeleteContainer returns ErrNotFound if nothing exists at path
// - ImportIdentity returns an error naming the file when it cannot be imported
type SecurityBackend interface {
	CreateContainer(ctx context.Context, path, password string) error
	UnlockContainer(ctx context.Context, path, password string) error
	ImportIdentity(ctx context.Context, path, file, filePassword string) error
	DeleteContainer(ctx context.Context, path string) error
}

// CredentialFiles is the per-team directory layout:
// {root}/{team}/certificates, {root}/{team}/profiles, {root}/{team}/config.env
// and one API key file.
//
// Error Contract:
// - APIKeyPath returns ErrNotFound when no key file exists and an error
//   when more than one exists
// - LoadConfig returns an empty config (not an error) when config.env is missing
type CredentialFiles interface {
	// Init creates the team directory tree.
	Init(team domain.TeamID) error

	// CertificateFiles lists importable certificate files (*.p12, *.cer).
	CertificateFiles(team domain.TeamID) ([]string, error)

	// KeyPairs lists exported key pairs named after their certificate id.
	KeyPairs(team domain.TeamID) ([]KeyPairFile, error)

	// SaveKeyPair exports key and certificate as a password-protected p12.
	SaveKeyPair(team domain.TeamID, certID string, key crypto.Signer, der []byte, password string) (string, error)

	LocalProfiles(team domain.TeamID) ([]domain.ProvisioningProfile, error)
	SaveProfile(team domain.TeamID, p domain.ProvisioningProfile) (string, error)

	APIKeyPath(team domain.TeamID) (string, error)
	InstallAPIKey(team domain.TeamID, src string) (string, error)

	LoadConfig(team domain.TeamID) (DeploymentConfig, error)
	SaveConfig(team domain.TeamID, cfg DeploymentConfig) error
}

// BuildTool is the external native toolchain.
type BuildTool interface {
	Build(ctx context.Context, req BuildRequest) (BuildResult, error)
}

// ArtifactInspector reads metadata out of a built package without any
// network access.
type ArtifactInspector interface {
	Inspect(ctx context.Context, path string) (ArtifactInfo, error)
}

// HighWaterMarks persists the highest build number ever observed per app.
//
// Error Contract:
// - HighWaterMark returns 0 and no error for unknown apps
// - RecordBuild never lowers a stored value
type HighWaterMarks interface {
	HighWaterMark(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) (domain.BuildNumber, error)
	RecordBuild(ctx context.Context, team domain.TeamID, app domain.AppIdentifier, version domain.MarketingVersion, build domain.BuildNumber) error
}

// DeploymentLog persists deployment records.
type DeploymentLog interface {
	AppendDeployment(ctx context.Context, rec domain.DeploymentRecord) error
	RecentDeployments(ctx context.Context, team domain.TeamID, limit int) ([]domain.DeploymentRecord, error)
}

// StrategyRanking persists upload strategy reliability.
type StrategyRanking interface {
	RecordUploadAttempt(ctx context.Context, strategy string, ok bool) error
	StrategyStats(ctx context.Context) ([]StrategyStat, error)
}

// StateStore bundles the persisted state ports.
type StateStore interface {
	HighWaterMarks
	DeploymentLog
	StrategyRanking
	Close() error
}

// PasswordSource stores the container password per team.
//
// Error Contract:
// - Password returns ErrNotFound when nothing is stored
type PasswordSource interface {
	Password(team domain.TeamID) (string, error)
	StorePassword(team domain.TeamID, password string) error
}
