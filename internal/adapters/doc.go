// Package adapters contains infrastructure implementations of port interfaces.
//
// This package is the ADAPTER LAYER in hexagonal architecture. It implements
// the port interfaces defined in internal/ports using concrete technologies
// (external command-line tools, the App Store Connect HTTP API, SQLite, the
// system keyring). Adapters translate between the application layer and
// those systems.
//
// Hexagonal Architecture Boundaries:
//   - Adapters implement: internal/ports interfaces
//   - Adapters import from: internal/domain, internal/ports, external SDKs, standard library
//   - Adapters are instantiated: by compose.Factory, called from cmd/signet (composition root)
//   - Domain/App layers: NEVER import concrete adapters directly
//
// Adapter Organization
//
//   - inbound/   - Adapters that receive external requests (statusapi)
//   - outbound/  - Adapters that make external calls or hold state
//   - compose/   - Factory that wires outbound adapters from configuration
//
// Outbound Adapters (Driven Adapters)
//
// Example: connectapi (outbound/connectapi/)
//   - Implements: ports.RemoteService, ports.UploadStrategy ("api")
//   - Technology: net/http with ES256 JWT bearer tokens
//   - Purpose: Certificates, profiles, devices and builds of a team
//
// Example: keychain (outbound/keychain/)
//   - Implements: ports.SecurityBackend
//   - Technology: the macOS security tool, or a portable file-based container
//   - Purpose: Ephemeral credential containers for one run
//
// Example: xcode, uploader (outbound/xcode/, outbound/uploader/)
//   - Implements: ports.BuildTool, ports.UploadStrategy ("altool", "transporter")
//   - Technology: xcodebuild and xcrun through toolexec.Runner
//
// Example: sqlite (outbound/sqlite/)
//   - Implements: ports.StateStore
//   - Technology: modernc.org/sqlite with goose migrations
//   - Purpose: Build high-water marks, deployment history, strategy ranking
//
// Example: inmemory (outbound/inmemory/)
//   - Implements: remote service, build tool, uploaders and containers
//   - Purpose: Offline dry runs and tests
//
// Composition Adapters
//
// Example: compose (outbound/compose/)
//   - Implements: ports.AdapterFactory
//   - Pattern: Abstract Factory
//   - Usage: Passed to app.Bootstrap() for dependency injection
//
// Example Dependency Flow
//
//	cmd/signet (composition root)
//	    ↓ creates
//	compose.Factory (implements ports.AdapterFactory)
//	    ↓ passed to
//	app.Bootstrap(ctx, settings, factory, opts)
//	    ↓ uses interfaces
//	app.Pipeline (ports.SecurityBackend, ports.RemoteService, ...)
//	    ↓ implemented by
//	keychain.SecurityCLI, connectapi.Client, xcode.Builder, sqlite.Store
//
// See Also
//   - internal/ports/ - Port interface definitions
//   - internal/domain/ - Domain models and business logic
//   - internal/app/ - Application layer and use-case orchestration
package adapters
