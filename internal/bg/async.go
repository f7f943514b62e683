package bg

import "sync"

// Async runs each function in its own goroutine.
type Async struct{}

// Do starts fn in a new goroutine.
func (Async) Do(fn func()) {
	go fn()
}

// Tracked runs functions asynchronously and lets the caller wait for all of
// them, e.g. before process exit.
type Tracked struct {
	wg sync.WaitGroup
}

// Do starts fn in a new goroutine tracked by Wait.
func (t *Tracked) Do(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

// Wait blocks until every started function returned.
func (t *Tracked) Wait() {
	t.wg.Wait()
}
