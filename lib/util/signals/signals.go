// Package signals dispatches process signals to registered handlers. SIGHUP
// reloads configuration; SIGINT and SIGTERM run the pre-shutdown handlers,
// bounded by the graceful timeout, and then the interrupt handlers.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// DefaultGracefulTimeout bounds how long pre-shutdown handlers may run.
const DefaultGracefulTimeout = 30 * time.Second

// sigChan is buffered so a signal delivered before Handle runs is not lost.
var sigChan = make(chan os.Signal, 1)

// Handler is called when a signal is received.
type Handler func()

// HandlerID identifies a registration for later removal.
type HandlerID int

type entry struct {
	id HandlerID
	fn Handler
}

type registry struct {
	name     string
	mu       sync.RWMutex
	handlers []entry
}

var (
	idMu     sync.Mutex
	nextID   HandlerID
	stopOnce sync.Once

	reloaders    = &registry{name: "reload"}
	preShutdown  = &registry{name: "pre_shutdown"}
	interrupters = &registry{name: "interrupt"}

	timeoutMu       sync.RWMutex
	gracefulTimeout = DefaultGracefulTimeout
)

func (r *registry) add(f Handler) HandlerID {
	if f == nil {
		return -1
	}
	idMu.Lock()
	id := nextID
	nextID++
	idMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, entry{id: id, fn: f})
	return id
}

func (r *registry) remove(id HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.id == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}

// run calls every handler in registration order. A panicking handler is
// logged and does not stop the rest.
func (r *registry) run() {
	r.mu.RLock()
	snapshot := make([]entry, len(r.handlers))
	copy(snapshot, r.handlers)
	r.mu.RUnlock()

	for _, h := range snapshot {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.WithFields(logger.Fields{
						"at":      "signals.registry.run",
						"handler": r.name,
						"panic":   p,
					}).Error("signal_handler_panicked")
				}
			}()
			h.fn()
		}()
	}
}

// RegisterReloadHandler registers f for SIGHUP. Nil handlers return -1.
func RegisterReloadHandler(f Handler) HandlerID { return reloaders.add(f) }

func DeregisterReloadHandler(id HandlerID) { reloaders.remove(id) }

// RegisterInterruptHandler registers f for SIGINT and SIGTERM.
func RegisterInterruptHandler(f Handler) HandlerID { return interrupters.add(f) }

func DeregisterInterruptHandler(id HandlerID) { interrupters.remove(id) }

// RegisterPreShutdownHandler registers f to run before the interrupt
// handlers, for work such as refusing new connections while live ones drain.
func RegisterPreShutdownHandler(f Handler) HandlerID { return preShutdown.add(f) }

func DeregisterPreShutdownHandler(id HandlerID) { preShutdown.remove(id) }

// SetGracefulTimeout bounds the pre-shutdown phase. Non-positive values
// restore DefaultGracefulTimeout.
func SetGracefulTimeout(d time.Duration) {
	timeoutMu.Lock()
	defer timeoutMu.Unlock()
	if d <= 0 {
		d = DefaultGracefulTimeout
	}
	gracefulTimeout = d
}

// handlePreShutdown reports whether the pre-shutdown handlers finished in time.
func handlePreShutdown() bool {
	if preShutdown.len() == 0 {
		return true
	}
	timeoutMu.RLock()
	timeout := gracefulTimeout
	timeoutMu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		preShutdown.run()
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.WithFields(logger.Fields{
			"at":      "signals.handlePreShutdown",
			"timeout": timeout.String(),
		}).Warn("pre_shutdown_timed_out")
		return false
	}
}

func handleReload() {
	log.WithField("at", "signals.handleReload").Info("reload_requested")
	reloaders.run()
}

func handleInterrupted() {
	log.WithField("at", "signals.handleInterrupted").Info("shutdown_requested")
	handlePreShutdown()
	interrupters.run()
}

// StopHandle makes Handle return. Safe to call more than once.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
