// Package backend provides the pluggable inference backends the embedding
// engine probes and falls back across. Each backend exposes the same
// contract: Probe acquires its resources (model session, network client),
// Embed turns text into an L2-normalized vector of the configured
// dimensionality, and Close releases whatever Probe acquired.
package backend

import (
	"context"
	"fmt"
	"time"
)

// Backend is one concrete inference execution strategy.
type Backend interface {
	// Kind identifies the backend in the fallback chain.
	Kind() Kind

	// Probe answers whether the backend is usable right now and, on success,
	// acquires its resource handle. Expected "not supported here" conditions
	// are reported as a *ProbeError with ReasonUnsupported rather than
	// escaping as plain errors, so a coordinator can continue down its chain.
	Probe(ctx context.Context) error

	// Embed produces a vector for the text. Only valid after a successful
	// Probe. Runtime failures propagate to the caller; backends do not retry
	// or fall back themselves.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases resources acquired by Probe. Safe to call repeatedly
	// and before Probe.
	Close() error
}

// Settings carries the subset of engine configuration backends need.
type Settings struct {
	// ModelID names the embedding model, e.g.
	// "sentence-transformers/all-MiniLM-L6-v2".
	ModelID string

	// Dimensions is the output vector length every backend must produce.
	Dimensions int

	// MaxLength bounds the token sequence, including the [CLS]/[SEP] markers.
	MaxLength int

	// ModelPath points at the ONNX model file.
	ModelPath string

	// VocabPath points at the WordPiece vocab.txt file.
	VocabPath string

	// RemoteBaseURL is the base URL of the remote embedding service. Empty
	// disables the remote backend.
	RemoteBaseURL string

	// RemoteTimeout bounds each remote round trip.
	RemoteTimeout time.Duration

	// RemoteRPS throttles remote requests. Zero means unlimited.
	RemoteRPS float64
}

// ProbeReason classifies why a probe declined a backend.
type ProbeReason string

const (
	// ReasonUnsupported marks the expected case: the capability simply is
	// not present in this environment.
	ReasonUnsupported ProbeReason = "capability-absent"

	// ReasonLoadFailed marks an unexpected resource failure, e.g. a missing
	// or corrupt model artifact.
	ReasonLoadFailed ProbeReason = "resource-load"

	// ReasonUnreachable marks a failed network reachability check.
	ReasonUnreachable ProbeReason = "unreachable"
)

// ProbeError is the structured failure a Probe reports. The coordinator
// records it and continues down the chain.
type ProbeError struct {
	Backend Kind
	Reason  ProbeReason
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s probe failed (%s): %v", e.Backend, e.Reason, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Expected reports whether the failure is an anticipated capability gap as
// opposed to a genuine error worth an error-level log entry.
func (e *ProbeError) Expected() bool { return e.Reason == ReasonUnsupported }
