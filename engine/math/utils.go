package math

import (
	stdmath "math"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// CeilToInt rounds a non-negative pixel measure up to the next whole pixel.
func CeilToInt[T constraints.Float](f T) int {
	if f <= 0 {
		return 0
	}
	return int(stdmath.Ceil(float64(f)))
}
