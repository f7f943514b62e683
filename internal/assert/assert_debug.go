//go:build debug

package assert

import "fmt"

// Invariant panics when ok is false. Only debug builds carry the check.
// Use it for internal state the code itself guarantees, never for input
// validation:
//
//	assert.Invariant(countValid(certs, kind, now) <= kind.Quota(),
//		"certificate quota exceeded after insert")
func Invariant(ok bool, msg string) {
	if !ok {
		panic(fmt.Sprintf("INVARIANT VIOLATION: %s", msg))
	}
}

// Invariantf is Invariant with a formatted message.
func Invariantf(ok bool, format string, args ...any) {
	if !ok {
		panic(fmt.Sprintf("INVARIANT VIOLATION: "+format, args...))
	}
}
