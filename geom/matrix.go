package geom

import "math"

// Mat4 is a 4x4 matrix stored in row-major order, m[row*4+col]. This
// matches the teacher math library's convention of laying out basis
// vectors contiguously, and is the natural layout for the row-major
// space-separated doubles persisted in _tb_transformation (spec §6.3).
type Mat4 struct {
	m [16]float64
}

// Identity4 is the identity transform.
func Identity4() *Mat4 {
	m := &Mat4{}
	m.SetIdentity()
	return m
}

// SetIdentity resets m to the identity matrix and returns m.
func (m *Mat4) SetIdentity() *Mat4 {
	m.m = [16]float64{}
	m.m[0], m.m[5], m.m[10], m.m[15] = 1, 1, 1, 1
	return m
}

// At returns the element at the given row, col (0-indexed).
func (m *Mat4) At(row, col int) float64 { return m.m[row*4+col] }

// Set assigns the element at row, col and returns m.
func (m *Mat4) Set(row, col int, v float64) *Mat4 {
	m.m[row*4+col] = v
	return m
}

// FromRowMajor builds a Mat4 from 16 values listed row by row, matching
// the _tb_transformation persisted format (spec §6.3).
func FromRowMajor(v [16]float64) *Mat4 { return &Mat4{m: v} }

// RowMajor returns the 16 elements of m listed row by row.
func (m *Mat4) RowMajor() [16]float64 { return m.m }

// Clone returns a copy of m.
func (m *Mat4) Clone() *Mat4 { c := *m; return &c }

// Eq reports whether m and a have identical elements.
func (m *Mat4) Eq(a *Mat4) bool { return m.m == a.m }

// Aeq reports whether every element of m is within Epsilon of a's.
func (m *Mat4) Aeq(a *Mat4) bool {
	for i := range m.m {
		if math.Abs(m.m[i]-a.m[i]) >= Epsilon {
			return false
		}
	}
	return true
}

// Mult sets m to a*b (a applied after b) and returns m.
func (m *Mat4) Mult(a, b *Mat4) *Mat4 {
	var r [16]float64
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a.m[row*4+k] * b.m[k*4+col]
			}
			r[row*4+col] = sum
		}
	}
	m.m = r
	return m
}

// Translate4 returns a translation matrix.
func Translate4(x, y, z float64) *Mat4 {
	m := Identity4()
	m.m[3], m.m[7], m.m[11] = x, y, z
	return m
}

// Scale4 returns a matrix that scales per-axis about the origin.
func Scale4(x, y, z float64) *Mat4 {
	m := Identity4()
	m.m[0], m.m[5], m.m[10] = x, y, z
	return m
}

// RotateAxisAngle returns the rotation matrix for the given axis and
// angle in degrees using the canonical Rodrigues rotation formula, as
// spec §4.F requires for rotation transforms.
func RotateAxisAngle(axis Vec3, degrees float64) *Mat4 {
	n := new(Vec3).Normalize(axis)
	if n.Len() < Epsilon {
		return Identity4()
	}
	rad := degrees * math.Pi / 180
	s, c := math.Sin(rad), math.Cos(rad)
	t := 1 - c
	x, y, z := n.X, n.Y, n.Z

	m := Identity4()
	m.m[0] = t*x*x + c
	m.m[1] = t*x*y - s*z
	m.m[2] = t*x*z + s*y
	m.m[4] = t*x*y + s*z
	m.m[5] = t*y*y + c
	m.m[6] = t*y*z - s*x
	m.m[8] = t*x*z - s*y
	m.m[9] = t*y*z + s*x
	m.m[10] = t*z*z + c
	return m
}

// Reflect4 returns the matrix that reflects across the plane through the
// origin whose normal is axis (axis must be a unit basis vector: X, Y or
// Z). Used to build flip transforms (spec §4.F): T = reflect(a) ∘
// translate(-2p·a).
func Reflect4(axis Vec3) *Mat4 {
	m := Identity4()
	m.m[0] -= 2 * axis.X * axis.X
	m.m[5] -= 2 * axis.Y * axis.Y
	m.m[10] -= 2 * axis.Z * axis.Z
	m.m[1] = -2 * axis.X * axis.Y
	m.m[4] = -2 * axis.X * axis.Y
	m.m[2] = -2 * axis.X * axis.Z
	m.m[8] = -2 * axis.X * axis.Z
	m.m[6] = -2 * axis.Y * axis.Z
	m.m[9] = -2 * axis.Y * axis.Z
	return m
}

// TransformPoint applies m to the point p (w=1) and returns the result.
func (m *Mat4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		m.m[0]*p.X + m.m[1]*p.Y + m.m[2]*p.Z + m.m[3],
		m.m[4]*p.X + m.m[5]*p.Y + m.m[6]*p.Z + m.m[7],
		m.m[8]*p.X + m.m[9]*p.Y + m.m[10]*p.Z + m.m[11],
	}
}

// TransformDir applies the linear (rotation/scale) part of m to the
// direction v (w=0), ignoring translation.
func (m *Mat4) TransformDir(v Vec3) Vec3 {
	return Vec3{
		m.m[0]*v.X + m.m[1]*v.Y + m.m[2]*v.Z,
		m.m[4]*v.X + m.m[5]*v.Y + m.m[6]*v.Z,
		m.m[8]*v.X + m.m[9]*v.Y + m.m[10]*v.Z,
	}
}

// Translation returns the translation component of m.
func (m *Mat4) Translation() Vec3 { return Vec3{m.m[3], m.m[7], m.m[11]} }

// Det returns the determinant of m, used to test for reflection
// (negative) and degeneracy (near zero).
func (m *Mat4) Det() float64 {
	a, b, c, d := m.m[0], m.m[1], m.m[2], m.m[3]
	e, f, g, h := m.m[4], m.m[5], m.m[6], m.m[7]
	i, j, k, l := m.m[8], m.m[9], m.m[10], m.m[11]
	n, o, p, q := m.m[12], m.m[13], m.m[14], m.m[15]

	return a*det3(f, g, h, j, k, l, o, p, q) -
		b*det3(e, g, h, i, k, l, n, p, q) +
		c*det3(e, f, h, i, j, l, n, o, q) -
		d*det3(e, f, g, i, j, k, n, o, p)
}

func det3(a, b, c, d, e, f, g, h, i float64) float64 {
	return a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
}

// Invert sets m to the inverse of a and returns m, ok. ok is false if a
// is singular (its determinant is within Epsilon of zero), in which case
// m is left unchanged.
func (m *Mat4) Invert(a *Mat4) (out *Mat4, ok bool) {
	inv, ok := invert4(a.m)
	if !ok {
		return m, false
	}
	m.m = inv
	return m, true
}

// invert4 computes the inverse of a 4x4 matrix using the adjugate /
// cofactor method, which is accurate enough for the affine transforms
// (rigid, scale, shear) the editor composes and avoids pulling in an
// external linear-algebra dependency for a single 4x4 case.
func invert4(m [16]float64) (out [16]float64, ok bool) {
	var inv [16]float64
	inv[0] = m[5]*m[10]*m[15] - m[5]*m[11]*m[14] - m[9]*m[6]*m[15] + m[9]*m[7]*m[14] + m[13]*m[6]*m[11] - m[13]*m[7]*m[10]
	inv[4] = -m[4]*m[10]*m[15] + m[4]*m[11]*m[14] + m[8]*m[6]*m[15] - m[8]*m[7]*m[14] - m[12]*m[6]*m[11] + m[12]*m[7]*m[10]
	inv[8] = m[4]*m[9]*m[15] - m[4]*m[11]*m[13] - m[8]*m[5]*m[15] + m[8]*m[7]*m[13] + m[12]*m[5]*m[11] - m[12]*m[7]*m[9]
	inv[12] = -m[4]*m[9]*m[14] + m[4]*m[10]*m[13] + m[8]*m[5]*m[14] - m[8]*m[6]*m[13] - m[12]*m[5]*m[10] + m[12]*m[6]*m[9]

	inv[1] = -m[1]*m[10]*m[15] + m[1]*m[11]*m[14] + m[9]*m[2]*m[15] - m[9]*m[3]*m[14] - m[13]*m[2]*m[11] + m[13]*m[3]*m[10]
	inv[5] = m[0]*m[10]*m[15] - m[0]*m[11]*m[14] - m[8]*m[2]*m[15] + m[8]*m[3]*m[14] + m[12]*m[2]*m[11] - m[12]*m[3]*m[10]
	inv[9] = -m[0]*m[9]*m[15] + m[0]*m[11]*m[13] + m[8]*m[1]*m[15] - m[8]*m[3]*m[13] - m[12]*m[1]*m[11] + m[12]*m[3]*m[9]
	inv[13] = m[0]*m[9]*m[14] - m[0]*m[10]*m[13] - m[8]*m[1]*m[14] + m[8]*m[2]*m[13] + m[12]*m[1]*m[10] - m[12]*m[2]*m[9]

	inv[2] = m[1]*m[6]*m[15] - m[1]*m[7]*m[14] - m[5]*m[2]*m[15] + m[5]*m[3]*m[14] + m[13]*m[2]*m[7] - m[13]*m[3]*m[6]
	inv[6] = -m[0]*m[6]*m[15] + m[0]*m[7]*m[14] + m[4]*m[2]*m[15] - m[4]*m[3]*m[14] - m[12]*m[2]*m[7] + m[12]*m[3]*m[6]
	inv[10] = m[0]*m[5]*m[15] - m[0]*m[7]*m[13] - m[4]*m[1]*m[15] + m[4]*m[3]*m[13] + m[12]*m[1]*m[7] - m[12]*m[3]*m[5]
	inv[14] = -m[0]*m[5]*m[14] + m[0]*m[6]*m[13] + m[4]*m[1]*m[14] - m[4]*m[2]*m[13] - m[12]*m[1]*m[6] + m[12]*m[2]*m[5]

	inv[3] = -m[1]*m[6]*m[11] + m[1]*m[7]*m[10] + m[5]*m[2]*m[11] - m[5]*m[3]*m[10] - m[9]*m[2]*m[7] + m[9]*m[3]*m[6]
	inv[7] = m[0]*m[6]*m[11] - m[0]*m[7]*m[10] - m[4]*m[2]*m[11] + m[4]*m[3]*m[10] + m[8]*m[2]*m[7] - m[8]*m[3]*m[6]
	inv[11] = -m[0]*m[5]*m[11] + m[0]*m[7]*m[9] + m[4]*m[1]*m[11] - m[4]*m[3]*m[9] - m[8]*m[1]*m[7] + m[8]*m[3]*m[5]
	inv[15] = m[0]*m[5]*m[10] - m[0]*m[6]*m[9] - m[4]*m[1]*m[10] + m[4]*m[2]*m[9] + m[8]*m[1]*m[6] - m[8]*m[2]*m[5]

	det := m[0]*inv[0] + m[1]*inv[4] + m[2]*inv[8] + m[3]*inv[12]
	if math.Abs(det) < Epsilon {
		return out, false
	}
	invDet := 1 / det
	for i := range inv {
		inv[i] *= invDet
	}
	return inv, true
}

// IsRigid reports whether m represents a rotation+translation only (no
// scale or shear): its linear part is orthogonal with determinant ~1.
// Spec §4.F uses this to decide whether transformed face plane points
// should be snapped back to the integer grid.
func (m *Mat4) IsRigid() bool {
	// columns of the linear part should be unit length and mutually
	// orthogonal; determinant should be +1 (not a reflection/scale).
	cols := [3]Vec3{
		{m.m[0], m.m[4], m.m[8]},
		{m.m[1], m.m[5], m.m[9]},
		{m.m[2], m.m[6], m.m[10]},
	}
	for _, c := range cols {
		if math.Abs(c.Len()-1) > 1e-6 {
			return false
		}
	}
	if math.Abs(cols[0].Dot(cols[1])) > 1e-6 {
		return false
	}
	if math.Abs(cols[0].Dot(cols[2])) > 1e-6 {
		return false
	}
	if math.Abs(cols[1].Dot(cols[2])) > 1e-6 {
		return false
	}
	return m.Det() > 0
}
