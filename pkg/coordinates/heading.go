package coordinates

import "math"

// NormalizeHeading maps any heading in degrees into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	// math.Mod(-0.0000001, 360) + 360 can round to exactly 360
	if h >= 360 {
		h = 0
	}
	return h
}

// ShortestTurn returns the signed change in degrees that takes heading
// from to heading to along the shorter arc. The result is in (-180, 180];
// positive values turn clockwise.
func ShortestTurn(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// LerpHeading moves heading cur toward target by fraction t of the shortest
// turn between them, so 350 -> 10 passes through north rather than south.
func LerpHeading(cur, target, t float64) float64 {
	return NormalizeHeading(cur + ShortestTurn(cur, target)*t)
}
