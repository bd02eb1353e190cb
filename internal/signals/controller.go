package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Iron-Ham/tosh/internal/logging"
)

// Handlers are the shell callbacks invoked for each signal class. Every
// callback runs on the controller's goroutine, never concurrently with
// itself.
type Handlers struct {
	// Interrupt runs on SIGINT. The shell survives the signal regardless.
	Interrupt func()
	// Terminate runs on SIGTERM.
	Terminate func()
	// ChildExited runs on SIGCHLD. When nil the controller does not listen
	// for SIGCHLD and finished children are only collected by polling.
	ChildExited func()
}

// Controller installs the shell's own signal dispositions and dispatches
// delivered signals to Handlers.
type Controller struct {
	handlers Handlers
	logger   *logging.Logger

	mu      sync.Mutex
	ch      chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewController creates a Controller. Nothing is installed until Start.
func NewController(h Handlers, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Controller{handlers: h, logger: logger}
}

// Signals returns the signals the controller listens for.
func (c *Controller) Signals() []os.Signal {
	sigs := []os.Signal{os.Interrupt, syscall.SIGTERM}
	if c.handlers.ChildExited != nil {
		sigs = append(sigs, syscall.SIGCHLD)
	}
	return sigs
}

// NotifiesChildExit reports whether SIGCHLD drives a sweep.
func (c *Controller) NotifiesChildExit() bool {
	return c.handlers.ChildExited != nil
}

// Start installs the handlers. Calling Start twice is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	// SIGCHLD deliveries coalesce; one pending notification is enough since
	// a sweep collects every finished child.
	c.ch = make(chan os.Signal, 4)
	c.done = make(chan struct{})
	signal.Notify(c.ch, c.Signals()...)

	c.wg.Add(1)
	go c.loop(c.ch, c.done)

	c.logger.Debug("signal handlers installed", "sigchld", c.NotifiesChildExit())
}

// Stop restores default handling and waits for an in-flight callback to
// return.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	signal.Stop(c.ch)
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
}

// IgnoreChildExit stops SIGCHLD-driven sweeps. The shutdown path calls it
// before reaping background jobs itself.
func (c *Controller) IgnoreChildExit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started && c.handlers.ChildExited != nil {
		signal.Reset(syscall.SIGCHLD)
		c.handlers.ChildExited = nil
	}
}

func (c *Controller) loop(ch <-chan os.Signal, done <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		case sig := <-ch:
			c.dispatch(sig)
		}
	}
}

func (c *Controller) dispatch(sig os.Signal) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()

	c.logger.Debug("signal received", "signal", sig.String())

	switch sig {
	case os.Interrupt:
		if h.Interrupt != nil {
			h.Interrupt()
		}
	case syscall.SIGTERM:
		if h.Terminate != nil {
			h.Terminate()
		}
	case syscall.SIGCHLD:
		if h.ChildExited != nil {
			h.ChildExited()
		}
	}
}
