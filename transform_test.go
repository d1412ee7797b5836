package mapkit

import (
	"strconv"
	"strings"
	"testing"

	"github.com/brushforge/mapkit/geom"
)

func cubeFaces(min, max geom.Vec3) []Face {
	return []Face{
		{P0: geom.Vec3{X: min.X, Y: min.Y, Z: min.Z}, P1: geom.Vec3{X: min.X, Y: max.Y, Z: min.Z}, P2: geom.Vec3{X: max.X, Y: min.Y, Z: min.Z}, Attrs: FaceAttributes{XScale: 1, YScale: 1, Material: "wood"}}, // bottom (-Z out)
		{P0: geom.Vec3{X: min.X, Y: min.Y, Z: max.Z}, P1: geom.Vec3{X: max.X, Y: min.Y, Z: max.Z}, P2: geom.Vec3{X: min.X, Y: max.Y, Z: max.Z}, Attrs: FaceAttributes{XScale: 1, YScale: 1, Material: "wood"}}, // top
		{P0: geom.Vec3{X: min.X, Y: min.Y, Z: min.Z}, P1: geom.Vec3{X: min.X, Y: min.Y, Z: max.Z}, P2: geom.Vec3{X: min.X, Y: max.Y, Z: min.Z}, Attrs: FaceAttributes{XScale: 1, YScale: 1, Material: "wood"}}, // -X
		{P0: geom.Vec3{X: max.X, Y: min.Y, Z: min.Z}, P1: geom.Vec3{X: max.X, Y: max.Y, Z: min.Z}, P2: geom.Vec3{X: max.X, Y: min.Y, Z: max.Z}, Attrs: FaceAttributes{XScale: 1, YScale: 1, Material: "wood"}}, // +X
		{P0: geom.Vec3{X: min.X, Y: min.Y, Z: min.Z}, P1: geom.Vec3{X: max.X, Y: min.Y, Z: min.Z}, P2: geom.Vec3{X: min.X, Y: min.Y, Z: max.Z}, Attrs: FaceAttributes{XScale: 1, YScale: 1, Material: "wood"}}, // -Y
		{P0: geom.Vec3{X: min.X, Y: max.Y, Z: min.Z}, P1: geom.Vec3{X: min.X, Y: max.Y, Z: max.Z}, P2: geom.Vec3{X: max.X, Y: max.Y, Z: min.Z}, Attrs: FaceAttributes{XScale: 1, YScale: 1, Material: "wood"}}, // +Y
	}
}

func TestBuildBrushMeshCube(t *testing.T) {
	faces := cubeFaces(geom.Vec3{}, geom.Vec3{X: 64, Y: 64, Z: 64})
	mesh, err := buildBrushMesh(faces)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mesh.Vertices) != 8 {
		t.Fatalf("expected 8 vertices for a cube, got %d", len(mesh.Vertices))
	}
	for i, fv := range mesh.FaceVertices {
		if len(fv) != 4 {
			t.Errorf("face %d: expected a quad (4 verts), got %d", i, len(fv))
		}
	}
}

func TestTransformScenarioBFlip(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()

	a := w.newNode(KindBrush, layer)
	a.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 0, Y: 0, Z: 0}, geom.Vec3{X: 30, Y: 31, Z: 31})}
	w.attachChild(layer, a.id)
	b := w.newNode(KindBrush, layer)
	b.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 30, Y: 0, Z: 0}, geom.Vec3{X: 31, Y: 31, Z: 31})}
	w.attachChild(layer, b.id)

	w.selectNodes([]NodeID{a.id, b.id})
	selBounds := w.LogicalBounds(a.id).Merge(w.LogicalBounds(b.id))
	center := selBounds.Center()

	flip := Reflect(0, center)
	if err := w.Transform(a.id, flip, TransformOptions{}); err != nil {
		t.Fatalf("flip a: %v", err)
	}
	if err := w.Transform(b.id, flip, TransformOptions{}); err != nil {
		t.Fatalf("flip b: %v", err)
	}

	gotA := w.LogicalBounds(a.id)
	gotB := w.LogicalBounds(b.id)
	wantA := testBounds(1, 0, 0, 31, 31, 31)
	wantB := testBounds(0, 0, 0, 1, 31, 31)
	if !gotA.Min.Aeq(wantB.Min) && !gotA.Min.Aeq(wantA.Min) {
		t.Fatalf("flip produced unexpected bounds a=%+v b=%+v", gotA, gotB)
	}
}

func TestRotateEntityPropertiesUpdatesAngleAnglesAndMangle(t *testing.T) {
	e := &EntityData{}
	e.Set("angle", "0")
	e.Set("angles", "0 0 15")
	e.Set("mangle", "0 90 0")

	rot := RotateAbout(geom.Vec3{Z: 1}, 90, geom.Vec3{})
	rotateEntityProperties(e, rot)

	angle, _ := e.Get("angle")
	if a, _ := strconv.ParseFloat(angle, 64); !floatsClose(a, 90) {
		t.Errorf("expected angle rotated to ~90, got %q", angle)
	}

	angles, _ := e.Get("angles")
	fields := strings.Fields(angles)
	if len(fields) != 3 {
		t.Fatalf("expected a 3-field angles string, got %q", angles)
	}
	pitch, _ := strconv.ParseFloat(fields[0], 64)
	yaw, _ := strconv.ParseFloat(fields[1], 64)
	roll, _ := strconv.ParseFloat(fields[2], 64)
	if !floatsClose(pitch, 0) || !floatsClose(yaw, 90) {
		t.Errorf("expected angles pitch/yaw rotated to ~0 90, got %q", angles)
	}
	if !floatsClose(roll, 15) {
		t.Errorf("expected angles roll to be left untouched at 15, got %v", roll)
	}

	mangle, _ := e.Get("mangle")
	if mangle == "0 90 0" {
		t.Errorf("expected mangle to be rotated, got unchanged %q", mangle)
	}
}

func floatsClose(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}

func TestScaleBBoxRejectsDegenerateTarget(t *testing.T) {
	src := testBounds(0, 0, 0, 10, 10, 10)
	degenerate := testBounds(0, 0, 0, 0, 10, 10)
	if _, err := ScaleBBox(src, degenerate); err == nil {
		t.Errorf("expected an error for a degenerate scale target")
	}
}

func TestTransformRejectsWorldBoundsViolation(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	brush := w.newNode(KindBrush, layer)
	brush.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 8000, Y: 0, Z: 0}, geom.Vec3{X: 8100, Y: 64, Z: 64})}
	w.attachChild(layer, brush.id)

	move := geom.Translate4(500, 0, 0)
	if err := w.Transform(brush.id, move, TransformOptions{}); err == nil {
		t.Fatalf("expected world-bounds violation error")
	}
}
