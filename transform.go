package mapkit

import (
	"math"
	"strconv"
	"strings"

	"github.com/brushforge/mapkit/geom"
)

// TransformOptions controls how Transform maps a subtree (spec §4.F).
type TransformOptions struct {
	// UVLock preserves face UV coordinates across the transform. Forced
	// on regardless of this field for any node that is a member of a
	// linked group (spec §4.F, §4.H.2).
	UVLock bool
}

// Reflect builds the flip-about-point matrix for axis a (0=X, 1=Y,
// 2=Z) through point p: T = reflect(a) ∘ translate(-2p·a) (spec §4.F).
func Reflect(axis int, p geom.Vec3) *geom.Mat4 {
	shift := geom.Vec3{}
	unit := geom.Vec3{}
	switch axis {
	case 0:
		shift.X, unit.X = -2*p.X, 1
	case 1:
		shift.Y, unit.Y = -2*p.Y, 1
	case 2:
		shift.Z, unit.Z = -2*p.Z, 1
	}
	t := geom.Translate4(shift.X, shift.Y, shift.Z)
	r := geom.Reflect4(unit)
	return new(geom.Mat4).Mult(r, t)
}

// RotateAbout builds the rotation of angleDegrees about axis a through
// point p, using the canonical Rodrigues form (spec §4.F).
func RotateAbout(axis geom.Vec3, angleDegrees float64, p geom.Vec3) *geom.Mat4 {
	r := geom.RotateAxisAngle(axis, angleDegrees)
	neg := p.Negate()
	toOrigin := geom.Translate4(neg.X, neg.Y, neg.Z)
	back := geom.Translate4(p.X, p.Y, p.Z)
	tmp := new(geom.Mat4).Mult(r, toOrigin)
	return new(geom.Mat4).Mult(back, tmp)
}

// ScaleBBox builds the matrix mapping source bbox onto target bbox,
// anisotropically per axis, rejecting a degenerate target (spec §4.F).
func ScaleBBox(source, target geom.Bounds3) (*geom.Mat4, error) {
	ts := target.Size()
	if ts.X == 0 || ts.Y == 0 || ts.Z == 0 {
		return nil, newErr(KindGeometry, "scale target bounds must not be degenerate on any axis")
	}
	ss := source.Size()
	sx, sy, sz := safeRatio(ts.X, ss.X), safeRatio(ts.Y, ss.Y), safeRatio(ts.Z, ss.Z)

	srcCenter := source.Center()
	neg := srcCenter.Negate()
	toOrigin := geom.Translate4(neg.X, neg.Y, neg.Z)
	scale := geom.Scale4(sx, sy, sz)
	tgtCenter := target.Center()
	toTarget := geom.Translate4(tgtCenter.X, tgtCenter.Y, tgtCenter.Z)

	tmp := new(geom.Mat4).Mult(scale, toOrigin)
	return new(geom.Mat4).Mult(toTarget, tmp), nil
}

func safeRatio(target, source float64) float64 {
	if source == 0 {
		return 1
	}
	return target / source
}

// Transform maps the subtree rooted at id through t, honoring opts and
// the forced-UV-lock-when-linked rule. It fails atomically: if any
// resulting brush is invalid or any produced node leaves world bounds,
// no field on the subtree is mutated.
func (w *World) Transform(id NodeID, t *geom.Mat4, opts TransformOptions) error {
	n := w.Node(id)
	if n == nil {
		return newErr(KindStructural, "transform: unknown node")
	}
	if n.linkID != "" && w.linkFamilySize(n.linkID) > 1 {
		opts.UVLock = true
	}

	plan, err := w.planTransform(id, t, opts)
	if err != nil {
		return err
	}
	worldBounds := w.RootData().Bounds
	for _, p := range plan {
		if !worldBounds.ContainsBounds(p.bounds) {
			return newErr(KindWorldBounds, "transform would move node %d outside world bounds", p.id)
		}
	}
	for _, p := range plan {
		p.apply(w)
	}
	w.invalidateBounds(id)
	return nil
}

type transformStep struct {
	id     NodeID
	bounds geom.Bounds3
	apply  func(*World)
}

func (w *World) planTransform(id NodeID, t *geom.Mat4, opts TransformOptions) ([]transformStep, error) {
	n := w.Node(id)
	if n == nil {
		return nil, nil
	}
	var steps []transformStep
	switch n.kind {
	case KindBrush:
		step, err := w.planBrushTransform(n, t, opts)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	case KindPatch:
		steps = append(steps, w.planPatchTransform(n, t))
	case KindEntity:
		if n.entity != nil {
			steps = append(steps, w.planEntityOriginTransform(n, t))
		}
		for _, c := range n.children {
			childSteps, err := w.planTransform(c, t, opts)
			if err != nil {
				return nil, err
			}
			steps = append(steps, childSteps...)
		}
	case KindGroup:
		if n.group != nil && n.group.Transform != nil {
			composed := new(geom.Mat4).Mult(t, n.group.Transform)
			steps = append(steps, transformStep{
				id:     n.id,
				bounds: w.LogicalBounds(n.id).Transformed(t),
				apply: func(w *World) {
					gn := w.node(n.id)
					gn.group.Transform = composed
					w.invalidateBounds(n.id)
				},
			})
			return steps, nil
		}
		for _, c := range n.children {
			childSteps, err := w.planTransform(c, t, opts)
			if err != nil {
				return nil, err
			}
			steps = append(steps, childSteps...)
		}
	default:
		for _, c := range n.children {
			childSteps, err := w.planTransform(c, t, opts)
			if err != nil {
				return nil, err
			}
			steps = append(steps, childSteps...)
		}
	}
	return steps, nil
}

func (w *World) planBrushTransform(n *Node, t *geom.Mat4, opts TransformOptions) (transformStep, error) {
	rigid := t.IsRigid()
	newFaces := make([]Face, len(n.brush.Faces))
	for i, f := range n.brush.Faces {
		nf := f
		nf.P0 = t.TransformPoint(f.P0)
		nf.P1 = t.TransformPoint(f.P1)
		nf.P2 = t.TransformPoint(f.P2)
		if rigid {
			nf.P0 = nf.P0.Round()
			nf.P1 = nf.P1.Round()
			nf.P2 = nf.P2.Round()
		}
		if t.Det() < 0 {
			// A reflection reverses the winding; swap it back so the
			// face's plane still points outward.
			nf.P1, nf.P2 = nf.P2, nf.P1
		}
		if !opts.UVLock {
			nf.Attrs = resetUV(nf.Attrs)
		}
		if _, ok := nf.Plane(); !ok {
			return transformStep{}, newErr(KindGeometry, "transformed face %d produced a degenerate plane", i)
		}
		newFaces[i] = nf
	}
	mesh, err := buildBrushMesh(newFaces)
	if err != nil {
		return transformStep{}, err
	}
	b := geom.EmptyBounds3()
	for _, v := range mesh.Vertices {
		b = b.Expand(v)
	}
	return transformStep{
		id:     n.id,
		bounds: b,
		apply: func(w *World) {
			bn := w.node(n.id)
			bn.brush.Faces = newFaces
			bn.brush.mesh = mesh
			w.invalidateBounds(n.id)
		},
	}, nil
}

func resetUV(a FaceAttributes) FaceAttributes {
	a.XOffset, a.YOffset, a.Rotation = 0, 0, 0
	a.XScale, a.YScale = 1, 1
	return a
}

func (w *World) planPatchTransform(n *Node, t *geom.Mat4) transformStep {
	newGrid := make([]PatchPoint, len(n.patch.Grid))
	b := geom.EmptyBounds3()
	for i, p := range n.patch.Grid {
		np := p
		np.Pos = t.TransformPoint(p.Pos)
		newGrid[i] = np
		b = b.Expand(np.Pos)
	}
	return transformStep{
		id:     n.id,
		bounds: b,
		apply: func(w *World) {
			pn := w.node(n.id)
			pn.patch.Grid = newGrid
			w.invalidateBounds(n.id)
		},
	}
}

func (w *World) planEntityOriginTransform(n *Node, t *geom.Mat4) transformStep {
	origin, hasOrigin := entityOrigin(n.entity)
	newOrigin := origin
	if hasOrigin {
		newOrigin = t.TransformPoint(origin)
	}
	return transformStep{
		id:     n.id,
		bounds: geom.Bounds3{Min: newOrigin, Max: newOrigin},
		apply: func(w *World) {
			en := w.node(n.id).entity
			if hasOrigin {
				en.Set("origin", formatVec3(newOrigin))
			}
			rotateEntityProperties(en, t)
			w.invalidateBounds(n.id)
		},
	}
}

// rotateEntityProperties updates the rotation-carrying properties named
// in spec §4.F (`angle`, `angles`, `mangle`) after a rigid transform.
// Non-rigid transforms (scale/shear) leave orientation properties
// untouched, matching how the reference editor treats entity angles as
// meaningful only under rotation.
func rotateEntityProperties(e *EntityData, t *geom.Mat4) {
	if !t.IsRigid() {
		return
	}
	if v, ok := e.Get("angle"); ok {
		if a, err := strconv.ParseFloat(v, 64); err == nil {
			yaw := geom.Vec3{X: math.Cos(a * math.Pi / 180), Y: math.Sin(a * math.Pi / 180)}
			r := t.TransformDir(yaw)
			e.Set("angle", formatFloat(math.Atan2(r.Y, r.X)*180/math.Pi))
		}
	}
	rotatePitchYawProperty(e, t, "angles")
	rotatePitchYawProperty(e, t, "mangle")
}

// rotatePitchYawProperty updates a "pitch yaw roll" triplet property
// (`angles` or `mangle`) by rotating its implied forward direction
// through t and recovering pitch and yaw from the result. Roll is left
// untouched, same as the reference editor: a single forward vector
// doesn't carry enough information to track rotation about itself.
func rotatePitchYawProperty(e *EntityData, t *geom.Mat4, key string) {
	v, ok := e.Get(key)
	if !ok {
		return
	}
	fields := strings.Fields(v)
	if len(fields) != 3 {
		return
	}
	pitch, err1 := strconv.ParseFloat(fields[0], 64)
	yaw, err2 := strconv.ParseFloat(fields[1], 64)
	roll, err3 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return
	}
	dir := directionFromPitchYaw(pitch, yaw)
	r := t.TransformDir(dir)
	newPitch, newYaw := pitchYawFromDirection(r)
	e.Set(key, formatFloat(newPitch)+" "+formatFloat(newYaw)+" "+formatFloat(roll))
}

func directionFromPitchYaw(pitchDeg, yawDeg float64) geom.Vec3 {
	pitch, yaw := pitchDeg*math.Pi/180, yawDeg*math.Pi/180
	return geom.Vec3{
		X: math.Cos(pitch) * math.Cos(yaw),
		Y: math.Cos(pitch) * math.Sin(yaw),
		Z: -math.Sin(pitch),
	}
}

func pitchYawFromDirection(d geom.Vec3) (pitchDeg, yawDeg float64) {
	pitchDeg = -math.Asin(clamp(d.Z, -1, 1)) * 180 / math.Pi
	yawDeg = math.Atan2(d.Y, d.X) * 180 / math.Pi
	return pitchDeg, yawDeg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatVec3(v geom.Vec3) string {
	return formatFloat(v.X) + " " + formatFloat(v.Y) + " " + formatFloat(v.Z)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (w *World) linkFamilySize(linkID string) int {
	count := 0
	w.walkAll(w.root, func(n *Node) {
		if n.linkID == linkID {
			count++
		}
	})
	return count
}

func (w *World) walkAll(id NodeID, visit func(*Node)) {
	n := w.Node(id)
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.children {
		w.walkAll(c, visit)
	}
}
