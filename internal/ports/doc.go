// Package ports defines the outbound ports (interfaces and types) that
// decouple the release orchestrator in internal/app from the remote
// service, the local security subsystem, the filesystem and the build tools.
//
// Files and responsibilities
// --------------------------
//   - outbound.go
//   - Remote service ports (CertificateAPI, ProfileAPI, BuildAPI,
//     ProcessingAPI), local collaborators (SecurityBackend, CredentialFiles,
//     BuildTool, ArtifactInspector, UploadStrategy) and persisted state
//     (HighWaterMarks, DeploymentLog, StrategyRanking, PasswordSource).
//   - Each interface includes an "Error Contract" in comments describing
//     sentinel errors returned by implementations.
//   - types.go
//   - Request/response values crossing the ports.
//   - errors.go
//   - Infrastructure errors returned by adapters. The application layer
//     maps them onto the domain error taxonomy.
//
// notes
// ------------
//   - Ports pass domain types (internal/domain) wherever a domain concept
//     exists and plain structs otherwise.
//   - No port exposes a global keychain or search list. The container path
//     is passed explicitly on every SecurityBackend call.
package ports
