package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// serializeVector converts a float64 slice to a byte blob (little-endian)
func serializeVector(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float64 slice
func deserializeVector(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 8", len(blob))
	}
	vector := make([]float64, len(blob)/8)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return vector, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. It is 0 when either vector is empty or has zero norm, and when
// the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := floats.Dot(a, b) / (normA * normB)
	// Rounding can push parallel vectors just past 1
	return math.Max(-1, math.Min(1, sim))
}

// SerializeVector exports serializeVector for testing
func SerializeVector(vector []float64) []byte {
	return serializeVector(vector)
}

// DeserializeVector exports deserializeVector for testing
func DeserializeVector(blob []byte) ([]float64, error) {
	return deserializeVector(blob)
}
