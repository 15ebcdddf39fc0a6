package embedder

import "gonum.org/v1/gonum/floats"

// Normalize returns a unit-length copy of v. A zero vector is returned as is.
func Normalize(v []float64) []float64 {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	floats.ScaleTo(out, 1/norm, v)
	return out
}

// IsZero reports whether every component of v is zero
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
