package debug

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInjected is returned by stages failed through a FaultProfile.
var ErrInjected = errors.New("injected fault")

// FaultProfile holds one-shot faults keyed by pipeline stage name.
// A fault fires the first time its stage asks and is then consumed, so a
// test injects exactly one failure per run.
type FaultProfile struct {
	mu sync.Mutex

	failAt      map[string]error
	interruptAt map[string]bool
	fired       []string
}

// NewFaultProfile returns an empty profile.
func NewFaultProfile() *FaultProfile {
	return &FaultProfile{
		failAt:      make(map[string]error),
		interruptAt: make(map[string]bool),
	}
}

// Faults is the process-wide profile, populated from SIGNET_DEBUG_FAIL_STAGE
// and SIGNET_DEBUG_INTERRUPT_STAGE by Init.
var Faults = NewFaultProfile()

// FailStage makes the next run of stage return err (ErrInjected when nil).
func (f *FaultProfile) FailStage(stage string, err error) {
	if err == nil {
		err = fmt.Errorf("%w at stage %s", ErrInjected, stage)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt[stage] = err
}

// InterruptStage simulates an interruption signal when stage starts.
func (f *FaultProfile) InterruptStage(stage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interruptAt[stage] = true
}

// ShouldFail checks and consumes the failure for stage.
func (f *FaultProfile) ShouldFail(stage string) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := f.failAt[stage]
	if !ok {
		return nil
	}
	delete(f.failAt, stage) // one-shot
	f.fired = append(f.fired, "fail:"+stage)
	return err
}

// ShouldInterrupt checks and consumes the interruption for stage.
func (f *FaultProfile) ShouldInterrupt(stage string) bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.interruptAt[stage] {
		return false
	}
	delete(f.interruptAt, stage)
	f.fired = append(f.fired, "interrupt:"+stage)
	return true
}

// Fired lists consumed faults in the order they fired.
func (f *FaultProfile) Fired() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fired...)
}

// Reset clears all faults.
func (f *FaultProfile) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.failAt)
	clear(f.interruptAt)
	f.fired = nil
}

// Snapshot returns pending faults, for logging.
func (f *FaultProfile) Snapshot() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	fail := make([]string, 0, len(f.failAt))
	for s := range f.failAt {
		fail = append(fail, s)
	}
	interrupt := make([]string, 0, len(f.interruptAt))
	for s := range f.interruptAt {
		interrupt = append(interrupt, s)
	}
	return map[string]any{
		"fail_stages":      fail,
		"interrupt_stages": interrupt,
	}
}
