package debug

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultProfile_FailIsOneShot(t *testing.T) {
	t.Parallel()

	f := NewFaultProfile()
	f.FailStage("upload", nil)

	err := f.ShouldFail("upload")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInjected)
	assert.NoError(t, f.ShouldFail("upload"), "fault must be consumed")
	assert.NoError(t, f.ShouldFail("build"))
}

func TestFaultProfile_CustomError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	f := NewFaultProfile()
	f.FailStage("build", boom)
	assert.Same(t, boom, f.ShouldFail("build"))
}

func TestFaultProfile_InterruptIsOneShot(t *testing.T) {
	t.Parallel()

	f := NewFaultProfile()
	f.InterruptStage("monitor")
	assert.True(t, f.ShouldInterrupt("monitor"))
	assert.False(t, f.ShouldInterrupt("monitor"))
	assert.Equal(t, []string{"interrupt:monitor"}, f.Fired())
}

func TestFaultProfile_NilIsInert(t *testing.T) {
	t.Parallel()

	var f *FaultProfile
	assert.NoError(t, f.ShouldFail("x"))
	assert.False(t, f.ShouldInterrupt("x"))
}

func TestFaultProfile_Reset(t *testing.T) {
	t.Parallel()

	f := NewFaultProfile()
	f.FailStage("a", nil)
	f.InterruptStage("b")
	f.Reset()
	assert.NoError(t, f.ShouldFail("a"))
	assert.False(t, f.ShouldInterrupt("b"))
	assert.Empty(t, f.Fired())
}

func TestFaultProfile_ConcurrentConsumeFiresOnce(t *testing.T) {
	t.Parallel()

	f := NewFaultProfile()
	f.FailStage("certificates", nil)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fired int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.ShouldFail("certificates") != nil {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fired)
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"build", "upload"}, splitList(" build, ,upload "))
	assert.Nil(t, splitList(""))
}
