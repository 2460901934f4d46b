package embedfall

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/helmavik/embedfall/backend"
)

type engineState int

const (
	stateUninitialized engineState = iota
	stateInitializing
	stateInitialized
)

// FallbackHook observes the engine advancing its active backend at runtime.
// It runs synchronously on the failing request's goroutine; keep it cheap.
type FallbackHook func(from, to backend.Kind, cause error)

// coordinator owns the fallback chain and all BackendStatus mutations: the
// ordered probe walk during initialization and the forward-only active
// cursor afterwards. Concurrent initializers share a single probe walk
// through the singleflight group, so each backend is probed at most once.
type coordinator struct {
	chain      []backend.Backend
	logger     *zap.Logger
	group      singleflight.Group
	onFallback FallbackHook

	mu        sync.RWMutex
	state     engineState
	active    int
	available map[int]bool
	errs      []BackendError
}

func newCoordinator(chain []backend.Backend, logger *zap.Logger, hook FallbackHook) *coordinator {
	return &coordinator{
		chain:      chain,
		logger:     logger,
		onFallback: hook,
		active:     -1,
		available:  make(map[int]bool),
	}
}

// initialize runs the probe walk exactly once per lifecycle. Probe failures
// never escape; they become status error entries and the walk continues, so
// the terminal lexical backend guarantees an active backend on return.
func (c *coordinator) initialize(ctx context.Context) {
	c.mu.RLock()
	done := c.state == stateInitialized
	c.mu.RUnlock()
	if done {
		return
	}

	c.group.Do("initialize", func() (interface{}, error) {
		c.mu.Lock()
		if c.state == stateInitialized {
			c.mu.Unlock()
			return nil, nil
		}
		c.state = stateInitializing
		c.mu.Unlock()

		c.probeChain(ctx)

		c.mu.Lock()
		c.state = stateInitialized
		c.mu.Unlock()
		return nil, nil
	})
}

func (c *coordinator) probeChain(ctx context.Context) {
	for i, b := range c.chain {
		err := b.Probe(ctx)
		if err == nil {
			c.mu.Lock()
			c.available[i] = true
			if c.active < 0 {
				c.active = i
			}
			c.mu.Unlock()
			c.logger.Info("backend available", zap.String("backend", b.Kind().String()))
			continue
		}

		var probeErr *backend.ProbeError
		if errors.As(err, &probeErr) && probeErr.Expected() {
			c.logger.Debug("backend unsupported",
				zap.String("backend", b.Kind().String()),
				zap.Error(err))
		} else {
			c.logger.Error("backend probe failed",
				zap.String("backend", b.Kind().String()),
				zap.Error(err))
		}
		c.recordError(b.Kind(), err)
	}
}

// current returns the active backend, or false before initialization.
func (c *coordinator) current() (backend.Backend, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != stateInitialized || c.active < 0 {
		return nil, 0, false
	}
	return c.chain[c.active], c.active, true
}

// advance moves the active cursor past a failed backend to the next
// available chain entry, closing the failed handle. It returns false only
// when nothing remains ahead; structurally impossible while the terminal
// lexical entry is intact, but guarded regardless. When another request
// already advanced past `from`, the call is a no-op and the caller retries
// against the new active backend.
func (c *coordinator) advance(from int, cause error) bool {
	c.mu.Lock()
	if c.active != from {
		c.mu.Unlock()
		return true
	}

	failed := c.chain[from]
	delete(c.available, from)
	next := -1
	for i := from + 1; i < len(c.chain); i++ {
		if c.available[i] {
			next = i
			break
		}
	}
	if next < 0 {
		c.mu.Unlock()
		return false
	}
	c.active = next
	to := c.chain[next].Kind()
	c.errs = append(c.errs, BackendError{
		Backend: failed.Kind(),
		Message: cause.Error(),
		Time:    time.Now(),
	})
	c.mu.Unlock()

	if err := failed.Close(); err != nil {
		c.logger.Warn("failed backend close", zap.String("backend", failed.Kind().String()), zap.Error(err))
	}
	c.logger.Warn("backend failed, falling back",
		zap.String("from", failed.Kind().String()),
		zap.String("to", to.String()),
		zap.Error(cause))
	if c.onFallback != nil {
		c.onFallback(failed.Kind(), to, cause)
	}
	return true
}

func (c *coordinator) recordError(kind backend.Kind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, BackendError{
		Backend: kind,
		Message: err.Error(),
		Time:    time.Now(),
	})
}

// snapshot copies the coordinator's view into a Status.
func (c *coordinator) snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		Initialized: c.state == stateInitialized,
		Chain:       make([]backend.Kind, len(c.chain)),
		Available:   make([]backend.Kind, 0, len(c.available)),
		Errors:      make([]BackendError, len(c.errs)),
	}
	for i, b := range c.chain {
		status.Chain[i] = b.Kind()
		if c.available[i] {
			status.Available = append(status.Available, b.Kind())
		}
	}
	copy(status.Errors, c.errs)
	if c.active >= 0 {
		status.Active = c.chain[c.active].Kind()
	}
	return status
}

func (c *coordinator) chainKinds() []backend.Kind {
	kinds := make([]backend.Kind, len(c.chain))
	for i, b := range c.chain {
		kinds[i] = b.Kind()
	}
	return kinds
}

// reset closes every handle and returns the coordinator to uninitialized.
// Safe even if initialization never ran.
func (c *coordinator) reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, b := range c.chain {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.state = stateUninitialized
	c.active = -1
	c.available = make(map[int]bool)
	c.errs = nil
	return firstErr
}
