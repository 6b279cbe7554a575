package signals

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetAll(t *testing.T) {
	t.Helper()
	reloaders.reset()
	preShutdown.reset()
	interrupters.reset()
	SetGracefulTimeout(0)
	t.Cleanup(func() {
		reloaders.reset()
		preShutdown.reset()
		interrupters.reset()
		SetGracefulTimeout(0)
	})
}

func TestRegister_NilIgnored(t *testing.T) {
	resetAll(t)
	assert.Equal(t, HandlerID(-1), RegisterReloadHandler(nil))
	assert.Equal(t, HandlerID(-1), RegisterInterruptHandler(nil))
	assert.Equal(t, HandlerID(-1), RegisterPreShutdownHandler(nil))
	assert.Zero(t, reloaders.len()+interrupters.len()+preShutdown.len())
}

func TestRegister_UniqueIDsAcrossKinds(t *testing.T) {
	resetAll(t)
	a := RegisterReloadHandler(func() {})
	b := RegisterInterruptHandler(func() {})
	c := RegisterPreShutdownHandler(func() {})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, a, c)
}

func TestDeregister(t *testing.T) {
	resetAll(t)
	var calls int32
	id := RegisterReloadHandler(func() { atomic.AddInt32(&calls, 1) })
	RegisterReloadHandler(func() { atomic.AddInt32(&calls, 10) })
	DeregisterReloadHandler(id)
	handleReload()
	assert.Equal(t, int32(10), atomic.LoadInt32(&calls))

	iid := RegisterInterruptHandler(func() { atomic.AddInt32(&calls, 100) })
	DeregisterInterruptHandler(iid)
	handleInterrupted()
	assert.Equal(t, int32(10), atomic.LoadInt32(&calls))
}

func TestInterrupt_PreShutdownRunsFirst(t *testing.T) {
	resetAll(t)
	var mu sync.Mutex
	var order []string
	record := func(s string) Handler {
		return func() {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
	}
	RegisterInterruptHandler(record("interrupt-1"))
	RegisterPreShutdownHandler(record("drain"))
	RegisterInterruptHandler(record("interrupt-2"))

	handleInterrupted()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"drain", "interrupt-1", "interrupt-2"}, order)
}

func TestRun_PanicDoesNotStopChain(t *testing.T) {
	resetAll(t)
	called := false
	RegisterReloadHandler(func() { panic("boom") })
	RegisterReloadHandler(func() { called = true })
	require.NotPanics(t, handleReload)
	assert.True(t, called)
}

func TestPreShutdown_Timeout(t *testing.T) {
	resetAll(t)
	SetGracefulTimeout(50 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	RegisterPreShutdownHandler(func() { <-release })

	start := time.Now()
	assert.False(t, handlePreShutdown())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPreShutdown_EmptyIsImmediate(t *testing.T) {
	resetAll(t)
	assert.True(t, handlePreShutdown())
}

func TestSetGracefulTimeout_NonPositiveRestoresDefault(t *testing.T) {
	resetAll(t)
	SetGracefulTimeout(time.Second)
	SetGracefulTimeout(-1)
	timeoutMu.RLock()
	defer timeoutMu.RUnlock()
	assert.Equal(t, DefaultGracefulTimeout, gracefulTimeout)
}
