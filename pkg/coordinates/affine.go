package coordinates

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTooFewAnchors is returned when fewer than 3 anchors are available.
	ErrTooFewAnchors = errors.New("affine transform needs at least 3 anchors")

	// ErrCollinearAnchors is returned when the first 3 anchors are collinear.
	ErrCollinearAnchors = errors.New("anchors are collinear")
)

// Anchor ties a domain coordinate pair to the scene coordinate it is drawn at.
type Anchor struct {
	// Domain is (X, Z) for world anchors or (Longitude, Latitude) for geo anchors
	Domain Point

	// Scene is the anchor's location in the map's own coordinate space
	Scene Point
}

// Affine is a 2x3 matrix mapping a domain pair (x, y) to scene coordinates:
//
//	sx = a[0][0]*x + a[0][1]*y + a[0][2]
//	sy = a[1][0]*x + a[1][1]*y + a[1][2]
type Affine [2][3]float64

// Apply maps a domain pair into scene coordinates.
func (a *Affine) Apply(x, y float64) Point {
	return Point{
		X: a[0][0]*x + a[0][1]*y + a[0][2],
		Y: a[1][0]*x + a[1][1]*y + a[1][2],
	}
}

// SolveAffine computes the unique affine transform through the first 3
// anchors. Additional anchors are ignored.
//
// The system is solved by inverting the 3x3 matrix of homogeneous domain
// coordinates [x, y, 1]; each output row of the transform is that inverse
// applied to the corresponding scene coordinates.
func SolveAffine(anchors []Anchor) (*Affine, error) {
	if len(anchors) < 3 {
		return nil, fmt.Errorf("%w (have %d)", ErrTooFewAnchors, len(anchors))
	}

	var m matrix3
	scale := 1.0
	for i := 0; i < 3; i++ {
		d := anchors[i].Domain
		m[i] = [3]float64{d.X, d.Y, 1}
		scale = math.Max(scale, math.Max(math.Abs(d.X), math.Abs(d.Y)))
	}

	// The determinant has units of domain^2; compare it against the
	// magnitude of the inputs rather than a fixed epsilon.
	det := m.determinant()
	if math.Abs(det) <= 1e-12*scale*scale || !finite(det) {
		return nil, ErrCollinearAnchors
	}

	inv := m.inverse(det)
	var sx, sy [3]float64
	for i := 0; i < 3; i++ {
		sx[i] = anchors[i].Scene.X
		sy[i] = anchors[i].Scene.Y
	}

	var a Affine
	a[0] = inv.mulVec(sx)
	a[1] = inv.mulVec(sy)
	return &a, nil
}

// matrix3 is a row-major 3x3 matrix.
type matrix3 [3][3]float64

func (m matrix3) determinant() float64 {
	minor12 := m[1][1]*m[2][2] - m[1][2]*m[2][1]
	minor02 := m[1][0]*m[2][2] - m[1][2]*m[2][0]
	minor01 := m[1][0]*m[2][1] - m[1][1]*m[2][0]
	return m[0][2]*minor01 + (m[0][0]*minor12 - m[0][1]*minor02)
}

func (m matrix3) inverse(det float64) matrix3 {
	invDet := 1 / det
	var r matrix3
	r[0][0] = invDet * (m[1][1]*m[2][2] - m[1][2]*m[2][1])
	r[1][0] = invDet * (m[1][2]*m[2][0] - m[1][0]*m[2][2])
	r[2][0] = invDet * (m[1][0]*m[2][1] - m[1][1]*m[2][0])
	r[0][1] = invDet * (m[0][2]*m[2][1] - m[0][1]*m[2][2])
	r[1][1] = invDet * (m[0][0]*m[2][2] - m[0][2]*m[2][0])
	r[2][1] = invDet * (m[0][1]*m[2][0] - m[0][0]*m[2][1])
	r[0][2] = invDet * (m[0][1]*m[1][2] - m[0][2]*m[1][1])
	r[1][2] = invDet * (m[0][2]*m[1][0] - m[0][0]*m[1][2])
	r[2][2] = invDet * (m[0][0]*m[1][1] - m[0][1]*m[1][0])
	return r
}

func (m matrix3) mulVec(v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}
