// Package shutdown keeps cleanup actions that must run when the process is
// interrupted. Resources register a hook the moment they exist and
// deregister it only after they were cleaned up, so a signal arriving at
// any point still finds them.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/sufield/signet/internal/bg"
)

// ID identifies a registered hook.
type ID uint64

// Hook is a cleanup action.
type Hook func(ctx context.Context) error

type entry struct {
	id   ID
	name string
	fn   Hook
}

// Hooks is a registry of cleanup actions run in reverse registration order.
type Hooks struct {
	mu      sync.Mutex
	next    ID
	entries []entry
}

// New returns an empty registry.
func New() *Hooks {
	return &Hooks{}
}

// Default is the process-wide registry used by cmd/signet.
var Default = New()

// Register adds fn and returns its id.
func (h *Hooks) Register(name string, fn Hook) ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.entries = append(h.entries, entry{id: h.next, name: name, fn: fn})
	return h.next
}

// Deregister removes a hook. Unknown ids are ignored.
func (h *Hooks) Deregister(id ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Run calls every registered hook, newest first, and returns the combined
// errors. Hooks run without the registry lock held so they may Deregister
// themselves.
func (h *Hooks) Run(ctx context.Context) error {
	h.mu.Lock()
	snapshot := make([]entry, len(h.entries))
	copy(snapshot, h.entries)
	h.mu.Unlock()

	var result *multierror.Error
	for i := len(snapshot) - 1; i >= 0; i-- {
		e := snapshot[i]
		if err := e.fn(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return result.ErrorOrNil()
}

// Watch runs onSignal (typically Run followed by exit) when one of sigs
// arrives, until ctx is done. runner must be asynchronous. The returned
// function stops watching.
func (h *Hooks) Watch(ctx context.Context, runner bg.Runner, onSignal func(os.Signal), sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	ctx, cancel := context.WithCancel(ctx)
	runner.Do(func() {
		defer signal.Stop(ch)
		select {
		case s := <-ch:
			onSignal(s)
		case <-ctx.Done():
		}
	})
	return cancel
}
