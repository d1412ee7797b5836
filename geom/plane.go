package geom

import "math"

// Plane is Normal·X = Dist, oriented so that a brush's interior is the
// half-space where Normal·X <= Dist (spec §4.A: a face is one half-space
// of a brush).
type Plane struct {
	Normal Vec3
	Dist   float64
}

// PlaneFromPoints builds the plane through three non-collinear points,
// wound so that Normal points away from the half-space containing the
// brush interior when p0, p1, p2 are given in the face's winding order.
func PlaneFromPoints(p0, p1, p2 Vec3) (Plane, bool) {
	var e1, e2, n Vec3
	e1.Sub(p1, p0)
	e2.Sub(p2, p0)
	n.Cross(e1, e2)
	if n.Len() < Epsilon {
		return Plane{}, false
	}
	n.Normalize(n)
	return Plane{Normal: n, Dist: n.Dot(p0)}, true
}

// SignedDistance returns the signed distance of p from the plane;
// positive is outside (in front of the normal).
func (p Plane) SignedDistance(pt Vec3) float64 {
	return p.Normal.Dot(pt) - p.Dist
}

// Transformed maps p through m. If m is non-rigid the normal is mapped
// by the inverse-transpose of the linear part so it stays perpendicular
// to the transformed surface; for the rigid transforms this reduces to
// a plain rotation.
func (p Plane) Transformed(m *Mat4) Plane {
	if m.IsRigid() {
		n := m.TransformDir(p.Normal)
		origin := m.TransformPoint(*new(Vec3).Scale(p.Normal, p.Dist))
		return Plane{Normal: n, Dist: n.Dot(origin)}
	}
	inv, ok := new(Mat4).Invert(m)
	n := p.Normal
	if ok {
		// inverse-transpose: apply the transpose of inv's linear part.
		lm := inv.m
		n = Vec3{
			lm[0]*p.Normal.X + lm[4]*p.Normal.Y + lm[8]*p.Normal.Z,
			lm[1]*p.Normal.X + lm[5]*p.Normal.Y + lm[9]*p.Normal.Z,
			lm[2]*p.Normal.X + lm[6]*p.Normal.Y + lm[10]*p.Normal.Z,
		}
		n.Normalize(n)
	}
	origin := m.TransformPoint(*new(Vec3).Scale(p.Normal, p.Dist))
	return Plane{Normal: n, Dist: n.Dot(origin)}
}

// IntersectThreePlanes returns the single point where a, b and c meet,
// or ok=false if any pair is parallel (the planes do not meet at a
// single point). Used to enumerate a brush's vertices from its faces
// (spec §4.A).
func IntersectThreePlanes(a, b, c Plane) (Vec3, bool) {
	var bc, ca, ab Vec3
	bc.Cross(b.Normal, c.Normal)
	denom := a.Normal.Dot(bc)
	if math.Abs(denom) < Epsilon {
		return Vec3{}, false
	}
	ca.Cross(c.Normal, a.Normal)
	ab.Cross(a.Normal, b.Normal)

	var sum, term Vec3
	term.Scale(bc, a.Dist)
	sum.Add(sum, term)
	term.Scale(ca, b.Dist)
	sum.Add(sum, term)
	term.Scale(ab, c.Dist)
	sum.Add(sum, term)
	sum.Scale(sum, 1/denom)
	return sum, true
}
