package ports

import "context"

// StrategyFactory builds the upload strategies for one run, in preferred
// order. remote is the service opened for the same run.
type StrategyFactory func(ctx context.Context, creds APICredentials, remote RemoteService) ([]UploadStrategy, error)

// AdapterFactory creates the outbound adapters app.Bootstrap wires into a
// pipeline. Errors mean the configured backend is unknown or unusable.
type AdapterFactory interface {
	CreateCredentialFiles() CredentialFiles
	CreateSecurityBackend() (SecurityBackend, error)
	CreateRemoteFactory() (RemoteFactory, error)
	CreateStrategies() (StrategyFactory, error)
	CreateBuildTool() (BuildTool, error)
	CreateInspector() ArtifactInspector
	CreateStateStore(ctx context.Context) (StateStore, error)
	CreatePasswordSource() PasswordSource
}
