package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProcessingState is the remote service's lifecycle state for an uploaded build.
type ProcessingState string

const (
	ProcessingInProgress ProcessingState = "PROCESSING"
	ProcessingValid      ProcessingState = "VALID"
	ProcessingInvalid    ProcessingState = "INVALID"
)

// ParseProcessingState normalizes s. Unknown non-terminal remote states
// (e.g. "UPLOADED") map to PROCESSING.
func ParseProcessingState(s string) (ProcessingState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VALID":
		return ProcessingValid, nil
	case "INVALID", "FAILED":
		return ProcessingInvalid, nil
	case "PROCESSING", "UPLOADED", "":
		return ProcessingInProgress, nil
	}
	return "", fmt.Errorf("%w: processing state %q", ErrInvalidKind, s)
}

// IsTerminal reports whether no further transitions are expected.
func (s ProcessingState) IsTerminal() bool {
	return s == ProcessingValid || s == ProcessingInvalid
}

func (s ProcessingState) String() string { return string(s) }

// ProcessingOutcome is the result of watching a build.
// TimedOut is set when the wait budget elapsed before a terminal state.
type ProcessingOutcome struct {
	State    ProcessingState
	TimedOut bool
	Polls    int
	Elapsed  time.Duration
}
