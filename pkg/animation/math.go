package animation

import "math"

// finite reports whether every value is neither NaN nor infinite.
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// mapRange re-maps x from [inMin, inMax] to [outMin, outMax] without clamping.
func mapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// wrapPhase folds p back into [0, 2π) with a single subtraction.
// Callers guarantee p < 4π.
func wrapPhase(p float64) float64 {
	if p >= twoPi {
		p -= twoPi
	}
	return p
}
