// Package bg decides how signet runs background work.
//
// Signal watchers and the status server go through a Runner instead of a bare
// "go" statement. The status server picks its Runner with For, so
// SIGNET_DEBUG_SINGLE_THREAD serves it inline. Signal watchers always use
// Async since they must run beside the command they interrupt.
package bg

// Runner executes functions, synchronously or asynchronously.
type Runner interface {
	Do(fn func())
}

// For picks Sync when singleThreaded is set and Async otherwise.
func For(singleThreaded bool) Runner {
	if singleThreaded {
		return Sync{}
	}
	return Async{}
}
