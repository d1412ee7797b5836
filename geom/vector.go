// Package geom provides the double-precision vector, matrix and bounds
// math used throughout the editor core: brush and patch geometry, face
// planes, and the rigid/affine transforms applied to scene nodes.
//
// The API favours mutating pointer-receiver methods that return the
// receiver so calls can be chained and so callers can reuse scratch
// values instead of allocating a fresh vector or matrix per call, eg:
//
//	sum := new(Vec3).Add(a, b)
//
// Values are float64 throughout: unlike a real-time renderer the editor
// composes many transforms over a session's lifetime (undo, redo, linked
// group propagation) and needs the extra precision to avoid visible
// drift.
package geom

import "math"

// Epsilon is the default tolerance used by Aeq-style almost-equal
// comparisons and by degeneracy checks (zero-extent bounds, coincident
// plane points).
const Epsilon = 1e-9

// Vec3 is a three element vector, used both as a direction and a point.
type Vec3 struct {
	X, Y, Z float64
}

// Clone returns a new copy of v.
func (v Vec3) Clone() *Vec3 { return &Vec3{v.X, v.Y, v.Z} }

// Eq reports whether v and a have identical components.
func (v Vec3) Eq(a Vec3) bool { return v.X == a.X && v.Y == a.Y && v.Z == a.Z }

// Aeq (almost-equal) reports whether v and a are within Epsilon of each
// other on every axis.
func (v Vec3) Aeq(a Vec3) bool {
	return math.Abs(v.X-a.X) < Epsilon && math.Abs(v.Y-a.Y) < Epsilon && math.Abs(v.Z-a.Z) < Epsilon
}

// Add sets v to a+b and returns v.
func (v *Vec3) Add(a, b Vec3) *Vec3 {
	v.X, v.Y, v.Z = a.X+b.X, a.Y+b.Y, a.Z+b.Z
	return v
}

// Sub sets v to a-b and returns v.
func (v *Vec3) Sub(a, b Vec3) *Vec3 {
	v.X, v.Y, v.Z = a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return v
}

// Scale sets v to a*s and returns v.
func (v *Vec3) Scale(a Vec3, s float64) *Vec3 {
	v.X, v.Y, v.Z = a.X*s, a.Y*s, a.Z*s
	return v
}

// Dot returns the dot product of v and a.
func (v Vec3) Dot(a Vec3) float64 { return v.X*a.X + v.Y*a.Y + v.Z*a.Z }

// Cross sets v to a×b and returns v.
func (v *Vec3) Cross(a, b Vec3) *Vec3 {
	v.X, v.Y, v.Z = a.Y*b.Z-a.Z*b.Y, a.Z*b.X-a.X*b.Z, a.X*b.Y-a.Y*b.X
	return v
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize sets v to a scaled to unit length and returns v. A
// near-zero-length a leaves v as the zero vector.
func (v *Vec3) Normalize(a Vec3) *Vec3 {
	l := a.Len()
	if l < Epsilon {
		v.X, v.Y, v.Z = 0, 0, 0
		return v
	}
	return v.Scale(a, 1/l)
}

// Min returns the component-wise minimum of v and a.
func (v Vec3) Min(a Vec3) Vec3 {
	return Vec3{math.Min(v.X, a.X), math.Min(v.Y, a.Y), math.Min(v.Z, a.Z)}
}

// Max returns the component-wise maximum of v and a.
func (v Vec3) Max(a Vec3) Vec3 {
	return Vec3{math.Max(v.X, a.X), math.Max(v.Y, a.Y), math.Max(v.Z, a.Z)}
}

// Negate returns -v.
func (v Vec3) Negate() Vec3 { return Vec3{-v.X, -v.Y, -v.Z} }

// Round returns v with every axis rounded to the nearest integer. Used to
// snap face plane points back onto the integer grid after a rigid
// transform (spec §4.A).
func (v Vec3) Round() Vec3 {
	return Vec3{math.Round(v.X), math.Round(v.Y), math.Round(v.Z)}
}
