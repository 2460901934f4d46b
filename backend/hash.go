package backend

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"go.uber.org/zap"
)

// HashBackend produces deterministic embeddings by feature-hashing word
// unigrams and bigrams into the output dimensions. The vectors carry no
// learned semantics, but identical texts always map to identical unit
// vectors and lexically overlapping texts land near each other, which keeps
// similarity search functional when no model runtime is available.
type HashBackend struct {
	dims   int
	logger *zap.Logger
}

// NewHash creates the pure-Go fallback encoder.
func NewHash(settings Settings, logger *zap.Logger) *HashBackend {
	return &HashBackend{dims: settings.Dimensions, logger: logger}
}

func (b *HashBackend) Kind() Kind { return KindHash }

// Probe always succeeds: the encoder needs no external resources.
func (b *HashBackend) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &ProbeError{Backend: KindHash, Reason: ReasonLoadFailed, Err: err}
	}
	b.logger.Debug("hash backend ready", zap.Int("dimensions", b.dims))
	return nil
}

func (b *HashBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, b.dims)
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	for i, word := range words {
		b.accumulate(vec, word, 1.0)
		if i+1 < len(words) {
			b.accumulate(vec, word+" "+words[i+1], 0.5)
		}
	}

	return L2Normalize(vec), nil
}

// accumulate folds one feature into the vector: the hash picks the bucket,
// one spare hash byte picks the sign.
func (b *HashBackend) accumulate(vec []float32, feature string, weight float32) {
	sum := sha256.Sum256([]byte(feature))
	bucket := binary.BigEndian.Uint32(sum[:4]) % uint32(b.dims)
	if sum[4]&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func (b *HashBackend) Close() error { return nil }
