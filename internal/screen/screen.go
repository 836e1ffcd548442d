// Package screen places remote screens around the host for presentation.
package screen

import (
	"math"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/geom"
)

const firstAngle = 90.0

// Scale is the presentation scale of the local screen.
func Scale(t *engine.Table) float64 { return t.Scale() }

// Angle is where screen sits around the host, in degrees. Remote screens are
// spread evenly starting at 90. Seen from a peer, every other screen is at 90.
func Angle(t *engine.Table, screen int) float64 {
	angle := firstAngle
	if t.LocalScreen == 0 {
		gap := 360 / float64(max(t.ScreenAmount-1, 1))
		angle = firstAngle + gap*float64(screen-1)
	}
	return geom.WrapDegrees(angle)
}

// Vector points from the local screen toward screen, two viewports away.
func Vector(t *engine.Table, screen int, viewport geom.Size) geom.Point {
	if screen == t.LocalScreen {
		return geom.Point{}
	}
	rad := Angle(t, screen) * math.Pi / 180
	return geom.Point{
		X: -math.Cos(rad) * viewport.Width * 2,
		Y: -math.Sin(rad) * viewport.Height * 2,
	}
}

// FromAngle returns the remote screen closest to angle. Only the host can aim
// at a screen; peers always get 0.
func FromAngle(t *engine.Table, angle float64) int {
	if t.LocalScreen != 0 {
		return 0
	}
	best, bestDist := 0, 360.0
	for s := 0; s < t.ScreenAmount; s++ {
		if s == t.LocalScreen {
			continue
		}
		if d := geom.MinAngleDiff(angle, Angle(t, s)); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}
