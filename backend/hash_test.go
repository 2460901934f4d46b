package backend

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"
)

func newTestHash(dims int) *HashBackend {
	return NewHash(Settings{Dimensions: dims}, zap.NewNop())
}

func TestHashBackendProbe(t *testing.T) {
	if err := newTestHash(64).Probe(context.Background()); err != nil {
		t.Fatalf("probe must always succeed, got %v", err)
	}
}

func TestHashBackendDeterministic(t *testing.T) {
	b := newTestHash(64)
	ctx := context.Background()

	first, err := b.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("identical text produced different vectors")
		}
	}
}

func TestHashBackendUnitNorm(t *testing.T) {
	b := newTestHash(128)
	vec, err := b.Embed(context.Background(), "some moderately long input text")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 128 {
		t.Fatalf("expected 128 dimensions, got %d", len(vec))
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %v", norm)
	}
}

func TestHashBackendEmptyText(t *testing.T) {
	vec, err := newTestHash(16).Embed(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("whitespace-only text should produce the zero vector")
		}
	}
}

func TestHashBackendCaseInsensitive(t *testing.T) {
	b := newTestHash(64)
	ctx := context.Background()

	lower, _ := b.Embed(ctx, "hello world")
	upper, _ := b.Embed(ctx, "HELLO World")
	for i := range lower {
		if lower[i] != upper[i] {
			t.Fatal("case differences changed the vector")
		}
	}
}

func TestHashBackendWordOrderMatters(t *testing.T) {
	b := newTestHash(64)
	ctx := context.Background()

	ab, _ := b.Embed(ctx, "alpha beta gamma")
	ba, _ := b.Embed(ctx, "gamma beta alpha")

	same := true
	for i := range ab {
		if ab[i] != ba[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("bigram features should make word order significant")
	}
}
