// Package app implements the release orchestrator: the managers that keep
// signing material valid under the remote quota, the ephemeral credential
// container, version resolution, build, upload and processing monitoring,
// and the Pipeline use cases (Deploy, SetupCertificates, Status, Init) that
// sequence them.
//
// Hexagonal boundaries
// --------------------
//   - app depends on internal/domain and internal/ports only; adapters are
//     injected by Bootstrap (bootstrap.go), the composition root.
//   - Every manager receives an Env carrying the clock, audit log, logger,
//     metrics and retry policy of the current run.
//   - The container handle is passed explicitly to every call that needs it.
//
// Files
// -----
//   - env.go: Env, per-team locks, remote error classification
//   - keychain.go: KeychainManager and ContainerHandle
//   - certificates.go: CertificateManager (quota, cleanup, creation)
//   - profiles.go: ProfileManager (matching, reuse, creation)
//   - versions.go: VersionResolver and BuildLedger
//   - build.go: BuildOrchestrator
//   - upload.go: UploadManager
//   - monitor.go: ProcessingMonitor
//   - pipeline.go, status.go, init.go: use cases
//   - request.go: request values and validation
//   - bootstrap.go: composition root
package app
