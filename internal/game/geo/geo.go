// Package geo provides the 3D position math shared by the bot policy and the
// action processor: distances, seek/flee steps, and in-zone sampling.
package geo

import "math"

// Position is a point in world space. Y is vertical; gameplay movement stays
// on the ground plane (y = 0) but distances account for all three axes.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the straight-line distance between a and b.
//
// Postcondition: Returns >= 0; Distance(a, a) == 0.
func Distance(a, b Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Toward returns the point step units from current in the direction of target,
// moving on the ground plane only. A step that would overshoot stops at the
// target's x/z instead. When current and target share x/z, the current
// position is returned unchanged.
//
// Precondition: step >= 0.
// Postcondition: The returned point is at most step ground-plane units from current.
func Toward(current, target Position, step float64) Position {
	dx := target.X - current.X
	dz := target.Z - current.Z
	dist := math.Sqrt(dx*dx + dz*dz)
	if dist == 0 {
		return current
	}
	if dist <= step {
		return Position{X: target.X, Y: current.Y, Z: target.Z}
	}
	return Position{
		X: current.X + dx/dist*step,
		Y: current.Y,
		Z: current.Z + dz/dist*step,
	}
}

// Away returns the point step units from current in the direction opposite
// target. When the two points share x/z there is no defined direction, so a
// step at the given fallback angle (radians) is taken instead.
//
// Precondition: step >= 0.
// Postcondition: The returned point is exactly step ground-plane units from current
// (unless step == 0).
func Away(current, target Position, step, fallbackAngle float64) Position {
	dx := current.X - target.X
	dz := current.Z - target.Z
	dist := math.Sqrt(dx*dx + dz*dz)
	if dist == 0 {
		return Position{
			X: current.X + math.Cos(fallbackAngle)*step,
			Y: current.Y,
			Z: current.Z + math.Sin(fallbackAngle)*step,
		}
	}
	return Position{
		X: current.X + dx/dist*step,
		Y: current.Y,
		Z: current.Z + dz/dist*step,
	}
}

// OnCircle returns the point at the given angle (radians) and radius from
// center, on the ground plane.
func OnCircle(center Position, angle, radius float64) Position {
	return Position{
		X: center.X + math.Cos(angle)*radius,
		Y: center.Y,
		Z: center.Z + math.Sin(angle)*radius,
	}
}
