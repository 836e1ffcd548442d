package geom

import "math"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MinAngleDiff returns the circular distance between two angles in degrees, always in [0, 180].
func MinAngleDiff(degA, degB float64) float64 {
	diff := math.Abs(WrapDegrees(degA) - WrapDegrees(degB))
	return math.Abs(math.Min(diff, 360-diff))
}

// WrapDegrees maps any angle onto [0, 360).
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	return w
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(math.Min(v, hi), lo)
}
