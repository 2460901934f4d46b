package backend

import (
	"math"
	"testing"
)

func TestMeanPool(t *testing.T) {
	t.Run("masked positions excluded", func(t *testing.T) {
		// seq=3, dims=2; third position is padding.
		hidden := []float32{
			1, 2,
			3, 4,
			100, 100,
		}
		got := MeanPool(hidden, 3, 2, []int32{1, 1, 0})
		if got[0] != 2 || got[1] != 3 {
			t.Fatalf("expected [2 3], got %v", got)
		}
	})

	t.Run("fully masked yields zero", func(t *testing.T) {
		got := MeanPool([]float32{1, 2, 3, 4}, 2, 2, []int32{0, 0})
		if got[0] != 0 || got[1] != 0 {
			t.Fatalf("expected zero vector, got %v", got)
		}
	})

	t.Run("nil mask pools everything", func(t *testing.T) {
		got := MeanPool([]float32{2, 4, 6, 8}, 2, 2, nil)
		if got[0] != 4 || got[1] != 6 {
			t.Fatalf("expected [4 6], got %v", got)
		}
	})
}

func TestL2Normalize(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		got := L2Normalize([]float32{3, 4})
		if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
			t.Fatalf("expected [0.6 0.8], got %v", got)
		}
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		got := L2Normalize([]float32{0, 0, 0})
		for _, v := range got {
			if v != 0 {
				t.Fatalf("zero vector must stay zero, got %v", got)
			}
		}
	})
}
