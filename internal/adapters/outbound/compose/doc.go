// Package compose builds the concrete outbound adapters selected by
// config.Settings: the remote backend (HTTP API or in-memory), the keychain
// backend, the build tool, the upload strategies, the state store and the
// password source.
//
// The in-memory choices (remote.backend=inmemory, build.tool=inmemory) give
// an offline dry run of the whole pipeline without Apple tooling or
// network access.
package compose
