package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestBackend(t *testing.T) Backend {
	t.Helper()
	b, err := newPlatformBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_PollEmpty(t *testing.T) {
	b := newTestBackend(t)

	result, err := b.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, result.Ready)
	assert.False(t, result.Woken)
	assert.False(t, result.TimedOut)
}

func TestBackend_TimesOut(t *testing.T) {
	b := newTestBackend(t)

	start := time.Now()
	result, err := b.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	if !result.TimedOut && !result.Woken && len(result.Ready) == 0 {
		// spurious return, which is permitted
		return
	}
	assert.True(t, result.TimedOut)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestBackend_WakeCoalesces(t *testing.T) {
	b := newTestBackend(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Wake())
	}

	result, err := b.Wait(-1)
	require.NoError(t, err)
	assert.True(t, result.Woken)

	// consumed by the previous wait
	result, err = b.Wait(0)
	require.NoError(t, err)
	assert.False(t, result.Woken)
}

func TestBackend_WakeFromOtherGoroutine(t *testing.T) {
	b := newTestBackend(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = b.Wake()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		result, err := b.Wait(time.Second)
		require.NoError(t, err)
		if result.Woken {
			return
		}
	}
	t.Fatal("wake not observed")
}

func TestBackend_Readiness(t *testing.T) {
	b := newTestBackend(t)
	rfd, wfd := newTestPipe(t)

	require.NoError(t, b.Watch(rfd, EventRead))
	assert.ErrorIs(t, b.Watch(rfd, EventRead), ErrNotifierAlreadyRegistered)

	_, err := unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	result, err := b.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, result.Ready, 1)
	assert.Equal(t, rfd, result.Ready[0].FD)
	assert.NotZero(t, result.Ready[0].Events&EventRead)

	require.NoError(t, b.Unwatch(rfd))
	result, err = b.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, result.Ready)

	// unknown descriptors are ignored
	assert.NoError(t, b.Unwatch(rfd))
}

func TestBackend_Hangup(t *testing.T) {
	b := newTestBackend(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	rfd := fds[0]
	t.Cleanup(func() { _ = unix.Close(rfd) })

	require.NoError(t, b.Watch(rfd, EventRead))
	require.NoError(t, unix.Close(fds[1]))

	result, err := b.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, result.Ready, 1)
	assert.NotZero(t, result.Ready[0].Events&(EventHangup|EventRead))
}

func TestBackend_Closed(t *testing.T) {
	b, err := newPlatformBackend()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Close(), ErrBackendClosed)
	assert.ErrorIs(t, b.Wake(), ErrBackendClosed)
	_, err = b.Wait(0)
	assert.ErrorIs(t, err, ErrBackendClosed)
	assert.ErrorIs(t, b.Watch(0, EventRead), ErrBackendClosed)
	assert.ErrorIs(t, b.Unwatch(0), ErrBackendClosed)
}
