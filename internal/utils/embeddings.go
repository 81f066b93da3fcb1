package utils

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrEmptyVector       = errors.New("vectors cannot be empty")
	ErrDimensionMismatch = errors.New("vectors must have the same dimension")
)

// CosineSimilarity returns the cosine of the angle between two embeddings.
// Zero-magnitude vectors score 0.
func CosineSimilarity(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, ErrEmptyVector
	}
	if len(vec1) != len(vec2) {
		return 0, ErrDimensionMismatch
	}

	var dot, sq1, sq2 float64
	for i := range vec1 {
		a, b := float64(vec1[i]), float64(vec2[i])
		dot += a * b
		sq1 += a * a
		sq2 += b * b
	}
	if sq1 == 0 || sq2 == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(sq1) * math.Sqrt(sq2))), nil
}

// Scored pairs an item index with its relevance score.
type Scored struct {
	Index int
	Score float32
}

// TopK returns the k highest scores, best first. Ties keep input order.
func TopK(scores []Scored, k int) []Scored {
	out := make([]Scored, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
