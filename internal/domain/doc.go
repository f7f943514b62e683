// Package domain contains the domain model for the signing and release orchestrator.
//
// This package is the CORE of the hexagonal architecture - it defines the
// credential and release entities with ZERO dependencies on external
// frameworks, SDKs, or infrastructure.
//
// Hexagonal Architecture Boundaries:
//   - Domain NEVER imports from: internal/adapters, internal/ports, internal/app, external SDKs
//   - Domain ONLY imports from: standard library, other domain types
//   - Domain exposes: value objects, entities, invariant checks, domain errors
//   - Domain does NOT: perform I/O, call the remote service, parse certificate files
//
// Files and types
// -----------------------
//   - kind.go
//   - CertificateKind, ProfileKind, CertificateOrigin: closed enums validated
//     at construction. ProfileKindForConfiguration maps build configurations.
//
//   - team.go, app_identifier.go
//   - TeamID (10-char alphanumeric) and AppIdentifier (reverse-DNS, exact or
//     wildcard) with the coverage rule used for profile matching.
//
//   - certificate.go, profile.go
//   - Certificate and ProvisioningProfile value objects.
//
//   - credential_store.go
//   - CredentialStore: team-scoped certificates and profiles with the
//     per-kind quota invariant and the cleanup candidate policy.
//
//   - application.go
//   - MarketingVersion, BuildNumber, BumpMode, Application, VersionResolution.
//
//   - container.go
//   - Container: ephemeral credential container lifecycle state machine.
//
//   - processing.go, deployment_record.go, import_report.go
//   - Remote processing states, audit deployment records, import reports.
//
//   - errors.go
//   - Error taxonomy (sentinels + *Error carrying a recovery suggestion).
package domain
