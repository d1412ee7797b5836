package mapkit

import (
	"math"
	"sort"

	"github.com/brushforge/mapkit/geom"
)

// buildBrushMesh intersects the half-spaces bounded by faces and
// returns the resulting convex polyhedron's vertices and per-face
// winding (spec §4.A). A brush is invalid — and buildBrushMesh returns
// an error — if the intersection has fewer than four vertices, if fewer
// than four faces touch it in three or more vertices (it encloses no
// volume), or if any face's generating points are collinear. A redundant
// face, one that touches the polyhedron in fewer than three vertices, is
// allowed; its winding lists just the vertices it touches.
func buildBrushMesh(faces []Face) (*BrushMesh, error) {
	if len(faces) < 4 {
		return nil, newErr(KindGeometry, "a brush needs at least 4 faces, got %d", len(faces))
	}
	planes := make([]geom.Plane, len(faces))
	for i, f := range faces {
		p, ok := f.Plane()
		if !ok {
			return nil, newErr(KindGeometry, "face %d's generating points are collinear or coincident", i)
		}
		planes[i] = p
	}

	var verts []geom.Vec3
	onFaces := map[int][]int{} // face index -> vertex indices lying on it.

	for i := 0; i < len(planes); i++ {
		for j := i + 1; j < len(planes); j++ {
			for k := j + 1; k < len(planes); k++ {
				pt, ok := geom.IntersectThreePlanes(planes[i], planes[j], planes[k])
				if !ok {
					continue
				}
				if !satisfiesAllPlanes(pt, planes) {
					continue
				}
				idx := findOrAddVertex(&verts, pt)
				addFaceVertex(onFaces, i, idx)
				addFaceVertex(onFaces, j, idx)
				addFaceVertex(onFaces, k, idx)
			}
		}
	}

	if len(verts) < 4 {
		return nil, newErr(KindGeometry, "brush half-space intersection produced only %d vertices", len(verts))
	}

	faceVerts := make([][]int, len(faces))
	bounding := 0
	for i := range faces {
		faceVerts[i] = windOrder(verts, dedupInts(onFaces[i]), planes[i].Normal)
		if len(faceVerts[i]) >= 3 {
			bounding++
		}
	}
	if bounding < 4 {
		return nil, newErr(KindGeometry, "brush intersection encloses no volume: only %d faces touch it", bounding)
	}

	return &BrushMesh{Vertices: verts, FaceVertices: faceVerts}, nil
}

func satisfiesAllPlanes(pt geom.Vec3, planes []geom.Plane) bool {
	for _, p := range planes {
		if p.SignedDistance(pt) > geom.Epsilon*4 {
			return false
		}
	}
	return true
}

func findOrAddVertex(verts *[]geom.Vec3, pt geom.Vec3) int {
	for i, v := range *verts {
		if v.Aeq(pt) {
			return i
		}
	}
	*verts = append(*verts, pt)
	return len(*verts) - 1
}

func addFaceVertex(onFaces map[int][]int, face, vertex int) {
	onFaces[face] = append(onFaces[face], vertex)
}

func dedupInts(in []int) []int {
	seen := map[int]bool{}
	out := in[:0:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// windOrder returns idx sorted into a consistent winding around the
// polygon's centroid, viewed along normal.
func windOrder(verts []geom.Vec3, idx []int, normal geom.Vec3) []int {
	if len(idx) < 3 {
		return idx
	}
	var centroid geom.Vec3
	for _, i := range idx {
		centroid.X += verts[i].X
		centroid.Y += verts[i].Y
		centroid.Z += verts[i].Z
	}
	n := float64(len(idx))
	centroid = geom.Vec3{X: centroid.X / n, Y: centroid.Y / n, Z: centroid.Z / n}

	u, v := basisFor(normal)
	angle := func(i int) float64 {
		d := geom.Vec3{X: verts[i].X - centroid.X, Y: verts[i].Y - centroid.Y, Z: verts[i].Z - centroid.Z}
		return math.Atan2(d.Dot(v), d.Dot(u))
	}
	out := append([]int(nil), idx...)
	sort.Slice(out, func(a, b int) bool { return angle(out[a]) < angle(out[b]) })
	return out
}

// basisFor returns two unit vectors spanning the plane perpendicular to
// normal, used only to establish a consistent 2D angle ordering.
func basisFor(normal geom.Vec3) (geom.Vec3, geom.Vec3) {
	ref := geom.Vec3{X: 1}
	if math.Abs(normal.Dot(ref)) > 0.9 {
		ref = geom.Vec3{Y: 1}
	}
	u := new(geom.Vec3).Cross(ref, normal)
	u.Normalize(*u)
	v := new(geom.Vec3).Cross(normal, *u)
	v.Normalize(*v)
	return *u, *v
}

// ComputeMesh (re)builds a brush node's cached mesh from its current
// faces, per spec §4.A.
func (w *World) ComputeMesh(id NodeID) error {
	n := w.Node(id)
	if n == nil || n.brush == nil {
		return newErr(KindStructural, "ComputeMesh: not a brush")
	}
	mesh, err := buildBrushMesh(n.brush.Faces)
	if err != nil {
		return err
	}
	n.brush.mesh = mesh
	w.invalidateBounds(id)
	return nil
}
