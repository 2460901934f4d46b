package embedfall

import (
	"errors"
	"time"

	"github.com/helmavik/embedfall/backend"
)

// ErrConfig marks invalid construction-time configuration.
var ErrConfig = errors.New("invalid engine config")

// BackendError is one structured entry in the status error log.
type BackendError struct {
	Backend backend.Kind `json:"backend"`
	Message string       `json:"message"`
	Time    time.Time    `json:"time"`
}

// PerformanceRecord is the smoothed latency estimate for one backend kind
// that has produced at least one successful result.
type PerformanceRecord struct {
	Backend    backend.Kind  `json:"backend"`
	AvgLatency time.Duration `json:"avg_latency"`
	LastUsed   time.Time     `json:"last_used"`
}

// Status is a read-only snapshot of the engine's runtime state. Mutating a
// snapshot has no effect on the engine.
type Status struct {
	// Initialized reports whether the probe walk has completed.
	Initialized bool `json:"initialized"`

	// Active is the backend currently serving requests; empty before
	// initialization.
	Active backend.Kind `json:"active,omitempty"`

	// Available lists every backend whose probe succeeded, in chain order.
	Available []backend.Kind `json:"available"`

	// Chain is the full configured fallback chain, in order.
	Chain []backend.Kind `json:"chain"`

	// Performance holds one record per backend that has produced a result.
	Performance []PerformanceRecord `json:"performance"`

	// Errors accumulates probe and inference failures.
	Errors []BackendError `json:"errors"`
}
