package bg_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/signet/internal/bg"
)

func TestSync_RunsInline(t *testing.T) {
	t.Parallel()

	ran := false
	bg.Sync{}.Do(func() { ran = true })
	assert.True(t, ran)
}

func TestTracked_WaitsForAll(t *testing.T) {
	t.Parallel()

	var (
		tr    bg.Tracked
		count atomic.Int32
	)
	for i := 0; i < 100; i++ {
		tr.Do(func() { count.Add(1) })
	}
	tr.Wait()
	assert.Equal(t, int32(100), count.Load())
}

func TestAsync_Runs(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	bg.Async{}.Do(func() { close(done) })
	<-done
}

func TestFor(t *testing.T) {
	t.Parallel()

	assert.IsType(t, bg.Sync{}, bg.For(true))
	assert.IsType(t, bg.Async{}, bg.For(false))
}
