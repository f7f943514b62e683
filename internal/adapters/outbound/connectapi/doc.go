// Package connectapi is the HTTP adapter for the remote signing and release
// service. It speaks the service's JSON:API dialect, authenticates every
// request with a short-lived ES256 token minted from the team's private API
// key, and maps HTTP failures onto the ports error contract:
//
//   - 401 and 403 become ports.ErrUnauthorized
//   - 404 becomes ports.ErrNotFound
//   - 409 becomes ports.ErrConflict
//   - 429, 5xx and dropped connections become ports.ErrTransient
//
// The same client also implements the "api" upload strategy.
package connectapi
