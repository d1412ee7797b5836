package geom

import "testing"

func TestMat4Identity(t *testing.T) {
	m := Identity4()
	p := m.TransformPoint(Vec3{1, 2, 3})
	if !p.Aeq(Vec3{1, 2, 3}) {
		t.Errorf("got %v", p)
	}
}

func TestMat4Translate(t *testing.T) {
	m := Translate4(1, 2, 3)
	p := m.TransformPoint(Vec3{0, 0, 0})
	if !p.Aeq(Vec3{1, 2, 3}) {
		t.Errorf("got %v", p)
	}
	if !m.IsRigid() {
		t.Errorf("pure translation should be rigid")
	}
}

func TestMat4Scale(t *testing.T) {
	m := Scale4(2, 1, 1)
	p := m.TransformPoint(Vec3{3, 3, 3})
	if !p.Aeq(Vec3{6, 3, 3}) {
		t.Errorf("got %v", p)
	}
	if m.IsRigid() {
		t.Errorf("non-uniform scale should not be rigid")
	}
}

func TestMat4RotateAxisAngle(t *testing.T) {
	m := RotateAxisAngle(Vec3{0, 0, 1}, 90)
	p := m.TransformPoint(Vec3{1, 0, 0})
	if !p.Aeq(Vec3{0, 1, 0}) {
		t.Errorf("expected rotation of +X to +Y, got %v", p)
	}
	if !m.IsRigid() {
		t.Errorf("rotation should be rigid")
	}
}

func TestMat4Reflect(t *testing.T) {
	m := Reflect4(Vec3{1, 0, 0})
	p := m.TransformPoint(Vec3{5, 2, 2})
	if !p.Aeq(Vec3{-5, 2, 2}) {
		t.Errorf("got %v", p)
	}
}

func TestMat4MultAndInvert(t *testing.T) {
	a := Translate4(1, 2, 3)
	b := RotateAxisAngle(Vec3{0, 1, 0}, 45)
	combined := new(Mat4).Mult(a, b)

	inv, ok := new(Mat4).Invert(combined)
	if !ok {
		t.Fatalf("expected invertible matrix")
	}
	round := new(Mat4).Mult(combined, inv)
	if !round.Aeq(Identity4()) {
		t.Errorf("m * m^-1 should be identity, got %v", round.RowMajor())
	}
}

func TestMat4InvertSingular(t *testing.T) {
	m := Scale4(0, 1, 1)
	_, ok := new(Mat4).Invert(m)
	if ok {
		t.Errorf("expected singular matrix to fail to invert")
	}
}
