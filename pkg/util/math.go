package util

import "math"

// Round4 rounds to 4 decimal places, the precision used in evaluation
// responses.
func Round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
