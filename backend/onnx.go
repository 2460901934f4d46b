//go:build onnx
// +build onnx

package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// onnxBackend runs the embedding model through ONNX Runtime. One instance
// serves one chain slot; the CUDA and CPU kinds differ only in the session
// options their probe requests.
type onnxBackend struct {
	kind     Kind
	settings Settings
	logger   *zap.Logger

	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	envHeld   bool
}

// The ONNX Runtime environment is process-global; backends share it through
// a refcount so closing one session does not tear it down under another.
var (
	ortEnvMu   sync.Mutex
	ortEnvRefs int
)

func acquireEnvironment() error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()
	if ortEnvRefs == 0 && !ort.IsInitialized() {
		if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
			ort.SetSharedLibraryPath(shlib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
	}
	ortEnvRefs++
	return nil
}

func releaseEnvironment() {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()
	if ortEnvRefs == 0 {
		return
	}
	ortEnvRefs--
	if ortEnvRefs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

func newONNXBackend(kind Kind, settings Settings, logger *zap.Logger) Backend {
	return &onnxBackend{kind: kind, settings: settings, logger: logger}
}

func (b *onnxBackend) Kind() Kind { return b.kind }

// Probe loads the tokenizer and opens a session with the execution provider
// this kind requires. Missing hardware support is reported as
// capability-absent; a missing or unreadable artifact as resource-load.
func (b *onnxBackend) Probe(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &ProbeError{Backend: b.kind, Reason: ReasonLoadFailed, Err: err}
	}

	if b.kind == KindONNXSIMD && !simdSupported() {
		return &ProbeError{Backend: b.kind, Reason: ReasonUnsupported, Err: errors.New("cpu lacks SIMD support")}
	}

	if _, err := os.Stat(b.settings.ModelPath); err != nil {
		return &ProbeError{Backend: b.kind, Reason: ReasonLoadFailed, Err: fmt.Errorf("model file: %w", err)}
	}

	tokenizer, err := LoadTokenizer(b.settings.VocabPath, b.settings.MaxLength)
	if err != nil {
		return &ProbeError{Backend: b.kind, Reason: ReasonLoadFailed, Err: fmt.Errorf("tokenizer: %w", err)}
	}

	if err := acquireEnvironment(); err != nil {
		return &ProbeError{Backend: b.kind, Reason: ReasonLoadFailed, Err: fmt.Errorf("onnxruntime environment: %w", err)}
	}
	b.envHeld = true

	opts, probeErr := b.sessionOptions()
	if probeErr != nil {
		b.releaseEnv()
		return probeErr
	}
	if opts != nil {
		defer opts.Destroy()
	}

	session, err := ort.NewDynamicAdvancedSession(
		b.settings.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		opts,
	)
	if err != nil {
		b.releaseEnv()
		return &ProbeError{Backend: b.kind, Reason: ReasonLoadFailed, Err: fmt.Errorf("session: %w", err)}
	}

	b.session = session
	b.tokenizer = tokenizer
	b.logger.Info("onnx backend ready",
		zap.String("backend", b.kind.String()),
		zap.String("model", b.settings.ModelPath))
	return nil
}

// sessionOptions builds per-kind session options. A CUDA provider that the
// local runtime cannot construct means the capability is absent, not broken.
func (b *onnxBackend) sessionOptions() (*ort.SessionOptions, *ProbeError) {
	if b.kind != KindONNXCUDA {
		return nil, nil
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, &ProbeError{Backend: b.kind, Reason: ReasonLoadFailed, Err: err}
	}
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		opts.Destroy()
		return nil, &ProbeError{Backend: b.kind, Reason: ReasonUnsupported, Err: err}
	}
	defer cudaOpts.Destroy()
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		opts.Destroy()
		return nil, &ProbeError{Backend: b.kind, Reason: ReasonUnsupported, Err: err}
	}
	return opts, nil
}

// Embed tokenizes the text, runs one [1, seq] inference, and masked-mean
// pools the [1, seq, dims] hidden state into a normalized vector.
func (b *onnxBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, fmt.Errorf("%s backend not probed", b.kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc := b.tokenizer.Encode(text)
	seq := b.tokenizer.MaxLength()

	ids := make([]int64, seq)
	mask := make([]int64, seq)
	types := make([]int64, seq)
	for i := 0; i < seq; i++ {
		ids[i] = int64(enc.InputIDs[i])
		mask[i] = int64(enc.AttentionMask[i])
		types[i] = int64(enc.TokenTypeIDs[i])
	}

	shape := ort.NewShape(1, int64(seq))
	idsTensor, err := ort.NewTensor[int64](shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typesTensor, err := ort.NewTensor[int64](shape, types)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typesTensor.Destroy()

	outputs := make([]ort.Value, 1)
	if err := b.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("unexpected output type (want float32 tensor)")
	}

	dims := b.settings.Dimensions
	data := out.GetData()
	outShape := out.GetShape()
	switch len(outShape) {
	case 3:
		// [1, seq, dims]
		if int(outShape[2]) != dims || len(data) != int(outShape[1])*dims {
			return nil, fmt.Errorf("unexpected hidden shape %v (want dims %d)", outShape, dims)
		}
		return L2Normalize(MeanPool(data, int(outShape[1]), dims, enc.AttentionMask)), nil
	case 2:
		// Already pooled: [1, dims].
		if int(outShape[1]) != dims || len(data) != dims {
			return nil, fmt.Errorf("unexpected output shape %v (want dims %d)", outShape, dims)
		}
		vec := make([]float32, dims)
		copy(vec, data)
		return L2Normalize(vec), nil
	default:
		return nil, fmt.Errorf("unsupported output shape %v", outShape)
	}
}

func (b *onnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
		b.tokenizer = nil
	}
	b.releaseEnv()
	return nil
}

func (b *onnxBackend) releaseEnv() {
	if b.envHeld {
		releaseEnvironment()
		b.envHeld = false
	}
}

func simdSupported() bool {
	return cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD
}
