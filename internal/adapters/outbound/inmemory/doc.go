// Package inmemory provides in-memory implementations of the outbound ports:
// a remote service that enforces certificate quota and walks uploaded builds
// through processing, a security backend that tracks containers, a build tool
// that writes a real signed-looking .ipa, scripted upload strategies and a
// password source.
//
// They back the unit and end-to-end tests and the "inmemory" remote backend
// used for offline dry runs.
package inmemory
