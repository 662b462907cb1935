package coordinates

import "math"

// Mapper converts domain positions into scene coordinates. It uses the
// affine transform when one was solved from the scene's anchors, and the
// linear geographic projection otherwise.
//
// A Mapper is immutable once built and safe to share.
type Mapper struct {
	extent Extent
	affine *Affine
	kind   Kind
}

// NewMapper builds a mapper over the scene's full extent. affine may be nil;
// kind is the coordinate kind of the anchors the affine was solved from.
func NewMapper(extent Extent, affine *Affine, kind Kind) *Mapper {
	if affine == nil {
		kind = KindNone
	}
	return &Mapper{extent: extent, affine: affine, kind: kind}
}

// HasAffine reports whether an anchor-derived transform is active.
func (m *Mapper) HasAffine() bool {
	return m.affine != nil
}

// AnchorKind returns the kind of position the affine transform accepts, or
// KindNone when no transform is active.
func (m *Mapper) AnchorKind() Kind {
	return m.kind
}

// Extent returns the full scene extent the mapper projects onto.
func (m *Mapper) Extent() Extent {
	return m.extent
}

// ToScene maps p into scene coordinates. The second return is false when
// the position cannot be placed: a world position with no matching affine
// transform, non-finite values, or latitude/longitude out of range.
func (m *Mapper) ToScene(p Position) (Point, bool) {
	x, y, ok := p.Domain()
	if !ok {
		return Point{}, false
	}

	if m.affine != nil && p.Kind == m.kind {
		s := m.affine.Apply(x, y)
		if !finite(s.X) || !finite(s.Y) {
			return Point{}, false
		}
		return s, true
	}

	if p.Kind != KindGeo {
		return Point{}, false
	}
	if math.Abs(p.Latitude) > 90 || math.Abs(p.Longitude) > 180 {
		return Point{}, false
	}
	return GeoToScene(m.extent, p.Latitude, p.Longitude), true
}

// GeoToScene linearly projects latitude/longitude onto the extent.
// Longitude is mirrored so that east increases leftward, and latitude is
// flipped so north is up.
func GeoToScene(extent Extent, lat, lon float64) Point {
	nx := (-lon + 180) / 360
	ny := (90 - lat) / 180
	return Point{
		X: extent.X + nx*extent.Width,
		Y: extent.Y + ny*extent.Height,
	}
}
