package toolexec

import (
	"context"
	"slices"
	"sync"
)

// Script is a Runner for tests. Every command is recorded; Handle decides
// the outcome (success with empty output when nil).
type Script struct {
	Handle func(cmd Command) (Result, error)

	mu    sync.Mutex
	calls []Command
}

var _ Runner = (*Script)(nil)

func (s *Script) Run(ctx context.Context, cmd Command) (Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	handle := s.Handle
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if handle == nil {
		return Result{}, nil
	}
	return handle(cmd)
}

// Calls returns the recorded commands.
func (s *Script) Calls() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Subcommands returns the first argument of every recorded command.
func (s *Script) Subcommands() []string {
	var out []string
	for _, c := range s.Calls() {
		if len(c.Args) > 0 {
			out = append(out, c.Args[0])
		}
	}
	return out
}
