package vmtrace_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihippik/vm-trace/internal/vmtrace"
)

func TestEpochSetOnce(t *testing.T) {
	var e vmtrace.Epoch

	assert.False(t, e.IsSet())
	assert.Zero(t, e.Since(42))

	require.NoError(t, e.Set(100))
	require.ErrorIs(t, e.Set(200), vmtrace.ErrAlreadyAttached)

	assert.True(t, e.IsSet())
	assert.Equal(t, int64(50), e.Since(150))
}

func TestEpochConcurrentSet(t *testing.T) {
	var (
		e     vmtrace.Epoch
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
	)

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start

			if e.Set(int64(i)) == nil {
				wins.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
