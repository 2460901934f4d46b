package backend

import "math"

// MeanPool averages the per-token vectors of a [seq, dims] hidden state into
// a single vector, counting only positions the attention mask marks as real
// tokens. A fully masked sequence yields the zero vector.
func MeanPool(hidden []float32, seq, dims int, mask []int32) []float32 {
	pooled := make([]float32, dims)
	var count float32
	for s := 0; s < seq; s++ {
		if s < len(mask) && mask[s] == 0 {
			continue
		}
		offset := s * dims
		for d := 0; d < dims; d++ {
			pooled[d] += hidden[offset+d]
		}
		count++
	}
	if count == 0 {
		return pooled
	}
	inv := 1.0 / count
	for d := range pooled {
		pooled[d] *= inv
	}
	return pooled
}

// L2Normalize scales a vector to unit Euclidean length. A zero vector is
// returned unchanged rather than dividing by zero.
func L2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	inv := float32(1.0 / norm)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
