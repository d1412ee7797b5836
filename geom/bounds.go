package geom

import "math"

// Bounds3 is an axis-aligned bounding box. A Bounds3 with Min.X > Max.X
// (or similarly for Y/Z) is considered empty/invalid; Expand starting
// from EmptyBounds3 is the usual way to build one up incrementally.
type Bounds3 struct {
	Min, Max Vec3
}

// EmptyBounds3 returns an inverted, empty bounds suitable as the seed
// for repeated Expand calls.
func EmptyBounds3() Bounds3 {
	inf := math.Inf(1)
	return Bounds3{Min: Vec3{inf, inf, inf}, Max: Vec3{-inf, -inf, -inf}}
}

// BoundsOf returns the smallest bounds containing every point in pts.
func BoundsOf(pts []Vec3) Bounds3 {
	b := EmptyBounds3()
	for _, p := range pts {
		b = b.Expand(p)
	}
	return b
}

// Valid reports whether the bounds has non-negative extent on every
// axis.
func (b Bounds3) Valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Degenerate reports whether the bounds is zero-extent on any axis,
// which spec §4.F rejects as a scale target.
func (b Bounds3) Degenerate() bool {
	size := b.Size()
	return size.X < Epsilon || size.Y < Epsilon || size.Z < Epsilon
}

// Size returns Max-Min.
func (b Bounds3) Size() Vec3 { return *new(Vec3).Sub(b.Max, b.Min) }

// Center returns the midpoint of the bounds.
func (b Bounds3) Center() Vec3 {
	return Vec3{(b.Min.X + b.Max.X) / 2, (b.Min.Y + b.Max.Y) / 2, (b.Min.Z + b.Max.Z) / 2}
}

// Contains reports whether p lies within the bounds (inclusive).
func (b Bounds3) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsBounds reports whether b fully contains a.
func (b Bounds3) ContainsBounds(a Bounds3) bool {
	return b.Contains(a.Min) && b.Contains(a.Max)
}

// Intersects reports whether b and a overlap on every axis.
func (b Bounds3) Intersects(a Bounds3) bool {
	return b.Min.X <= a.Max.X && b.Max.X >= a.Min.X &&
		b.Min.Y <= a.Max.Y && b.Max.Y >= a.Min.Y &&
		b.Min.Z <= a.Max.Z && b.Max.Z >= a.Min.Z
}

// Merge returns the smallest bounds containing both b and a.
func (b Bounds3) Merge(a Bounds3) Bounds3 {
	if !a.Valid() {
		return b
	}
	if !b.Valid() {
		return a
	}
	return Bounds3{Min: b.Min.Min(a.Min), Max: b.Max.Max(a.Max)}
}

// Expand returns the smallest bounds containing b and the point p.
func (b Bounds3) Expand(p Vec3) Bounds3 {
	if !b.Valid() {
		return Bounds3{Min: p, Max: p}
	}
	return Bounds3{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Corners returns the eight corner points of the bounds, used by
// transform code that needs to map a bounds through a matrix.
func (b Bounds3) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z}, {b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z}, {b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z}, {b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z}, {b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// Transformed returns the axis-aligned bounds of b after every corner is
// mapped through m — used when recomputing a node's cached bounds after
// a non-rigid transform.
func (b Bounds3) Transformed(m *Mat4) Bounds3 {
	out := EmptyBounds3()
	for _, c := range b.Corners() {
		out = out.Expand(m.TransformPoint(c))
	}
	return out
}
