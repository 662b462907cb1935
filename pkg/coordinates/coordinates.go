package coordinates

import (
	"math"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi
)

// Kind identifies which domain coordinate system a Position is expressed in.
type Kind int

const (
	// KindNone marks a position that carries no usable coordinates.
	KindNone Kind = iota

	// KindWorld is simulation world space: X east/west, Z north/south.
	KindWorld

	// KindGeo is WGS84 latitude/longitude in decimal degrees.
	KindGeo
)

func (k Kind) String() string {
	switch k {
	case KindWorld:
		return "world"
	case KindGeo:
		return "geo"
	default:
		return "none"
	}
}

// Position is a tagged domain coordinate. The kind is decided once when a
// feed record is ingested and is never re-sniffed afterwards.
type Position struct {
	Kind Kind

	// X and Z are simulation world coordinates (KindWorld only)
	X, Z float64

	// Latitude in decimal degrees (-90 to +90), KindGeo only
	Latitude float64

	// Longitude in decimal degrees (-180 to +180), KindGeo only
	Longitude float64
}

// World returns a world-space position.
func World(x, z float64) Position {
	return Position{Kind: KindWorld, X: x, Z: z}
}

// Geo returns a geographic position.
func Geo(lat, lon float64) Position {
	return Position{Kind: KindGeo, Latitude: lat, Longitude: lon}
}

// Domain returns the position as the (x, y) pair used by anchors and the
// affine transform: (X, Z) for world positions, (Longitude, Latitude) for
// geographic ones.
func (p Position) Domain() (float64, float64, bool) {
	switch p.Kind {
	case KindWorld:
		return p.X, p.Z, finite(p.X) && finite(p.Z)
	case KindGeo:
		return p.Longitude, p.Latitude, finite(p.Longitude) && finite(p.Latitude)
	default:
		return 0, 0, false
	}
}

// Lerp moves p toward target by fraction t of the remaining distance on
// each axis. Positions of different kinds do not interpolate; the target is
// returned as-is.
func (p Position) Lerp(target Position, t float64) Position {
	if p.Kind != target.Kind {
		return target
	}
	switch p.Kind {
	case KindWorld:
		p.X += (target.X - p.X) * t
		p.Z += (target.Z - p.Z) * t
	case KindGeo:
		p.Latitude += (target.Latitude - p.Latitude) * t
		p.Longitude += (target.Longitude - p.Longitude) * t
	}
	return p
}

// Point is a position in scene coordinates.
type Point struct {
	X, Y float64
}

// Extent is an axis-aligned rectangle in scene coordinates.
type Extent struct {
	X, Y          float64
	Width, Height float64
}

// Empty reports whether the extent has no area.
func (e Extent) Empty() bool {
	return !(e.Width > 0) || !(e.Height > 0)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
