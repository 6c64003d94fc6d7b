package field

import (
	"fmt"
	"math"
)

// CenteredDifference writes (plus[i]-minus[i]) / (2*dt) into dst.
// dt is not checked: a zero step yields Inf or NaN.
func CenteredDifference(dst, plus, minus []float64, dt float64) error {
	if len(plus) != len(dst) || len(minus) != len(dst) {
		return fmt.Errorf("%w: dst=%d plus=%d minus=%d", ErrLengthMismatch, len(dst), len(plus), len(minus))
	}
	den := 2.0 * dt
	for i := range dst {
		dst[i] = (plus[i] - minus[i]) / den
	}
	return nil
}

func Zero(dst []float64) {
	clear(dst)
}

// MaxAbs returns the largest absolute value in src, or 0 for an empty slice.
func MaxAbs(src []float64) float64 {
	m := 0.0
	for _, v := range src {
		if a := math.Abs(v); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}
