package memory

import "math"

// normalizeVector L2-normalizes v in place into a fresh slice. A
// zero-length vector or an all-zero vector is returned unchanged, since
// there is no direction to normalize onto.
func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
