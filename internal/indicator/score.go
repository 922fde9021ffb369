package indicator

import "math"

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// interpolate maps x through the piecewise-linear curve (xs[i], ys[i]).
// xs must be non-decreasing; zero-width segments are skipped, so
// degenerate curves (every knot equal) still return a value inside ys.
// Outside the knots the end values are held.
func interpolate(x float64, xs, ys []float64) float64 {
	n := len(xs)
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	for i := 1; i < n; i++ {
		if x > xs[i] {
			continue
		}
		width := xs[i] - xs[i-1]
		if width <= 0 {
			return ys[i]
		}
		t := (x - xs[i-1]) / width
		return ys[i-1] + t*(ys[i]-ys[i-1])
	}
	return ys[n-1]
}

// relativeScore centres a signed relative distance at 50:
// 50 + 50·diff/|ref|, clamped to [0, 100]. A zero reference maps the
// sign of diff to the extremes.
func relativeScore(diff, ref float64) float64 {
	if ref == 0 {
		switch {
		case diff > 0:
			return 100
		case diff < 0:
			return 0
		default:
			return 50
		}
	}
	return clamp(50+50*diff/math.Abs(ref), 0, 100)
}

func validScore(s float64) bool {
	return !math.IsNaN(s) && s >= 0 && s <= 100
}
