package backend

// Kind identifies one concrete inference execution strategy.
type Kind string

const (
	// KindONNXCUDA runs the ONNX model on a CUDA-capable GPU.
	KindONNXCUDA Kind = "onnx-cuda"

	// KindONNXSIMD runs the ONNX model on the CPU, gated on SIMD support.
	KindONNXSIMD Kind = "onnx-simd"

	// KindONNXCPU runs the ONNX model on the CPU without the SIMD gate.
	KindONNXCPU Kind = "onnx-cpu"

	// KindHash is a pure-Go deterministic encoder with no native dependencies.
	KindHash Kind = "hash"

	// KindRemote delegates embedding to a remote HTTP service.
	KindRemote Kind = "remote"

	// KindLexical returns zero vectors and can never fail. It terminates
	// every fallback chain.
	KindLexical Kind = "lexical"
)

func (k Kind) String() string { return string(k) }

// Semantic reports whether vectors produced by this kind carry semantic
// information. Only the lexical terminal does not.
func (k Kind) Semantic() bool { return k != KindLexical }
