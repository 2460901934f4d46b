//go:build !onnx
// +build !onnx

package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Without the 'onnx' build tag the native backends are permanently
// unsupported; their probe declines and the chain moves on. This keeps the
// default build free of CGO while preserving the chain shape.
type onnxUnavailable struct {
	kind Kind
}

func newONNXBackend(kind Kind, _ Settings, _ *zap.Logger) Backend {
	return &onnxUnavailable{kind: kind}
}

func (b *onnxUnavailable) Kind() Kind { return b.kind }

func (b *onnxUnavailable) Probe(context.Context) error {
	return &ProbeError{
		Backend: b.kind,
		Reason:  ReasonUnsupported,
		Err:     errors.New("built without onnx support"),
	}
}

func (b *onnxUnavailable) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%s backend unavailable in this build", b.kind)
}

func (b *onnxUnavailable) Close() error { return nil }
