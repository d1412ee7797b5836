package mapkit

import (
	"sort"

	"github.com/brushforge/mapkit/geom"
)

// FaceRef names one selected brush face.
type FaceRef struct {
	Node  NodeID
	Face  int
}

// Selection is the world's current selection (spec §4.E): ordered unique
// sets of selected nodes and selected brush faces, plus the summaries
// callers need without recomputing them.
type Selection struct {
	nodeSet   map[NodeID]bool
	nodeOrder []NodeID
	faceSet   map[FaceRef]bool
	faceOrder []FaceRef
}

func newSelection() Selection {
	return Selection{nodeSet: map[NodeID]bool{}, faceSet: map[FaceRef]bool{}}
}

// Nodes returns the selected nodes in selection order.
func (s Selection) Nodes() []NodeID {
	out := make([]NodeID, len(s.nodeOrder))
	copy(out, s.nodeOrder)
	return out
}

// Faces returns the selected faces in selection order.
func (s Selection) Faces() []FaceRef {
	out := make([]FaceRef, len(s.faceOrder))
	copy(out, s.faceOrder)
	return out
}

// Empty reports whether nothing at all is selected.
func (s Selection) Empty() bool { return len(s.nodeOrder) == 0 && len(s.faceOrder) == 0 }

// HasNode reports whether id is currently selected.
func (s Selection) HasNode(id NodeID) bool { return s.nodeSet[id] }

// OnlyGroups reports whether the node selection is non-empty and every
// selected node is a Group.
func (s Selection) OnlyGroups(w *World) bool { return s.onlyKind(w, KindGroup) }

// OnlyBrushes reports whether the node selection is non-empty and every
// selected node is a Brush.
func (s Selection) OnlyBrushes(w *World) bool { return s.onlyKind(w, KindBrush) }

func (s Selection) onlyKind(w *World, kind Kind) bool {
	if len(s.nodeOrder) == 0 {
		return false
	}
	for _, id := range s.nodeOrder {
		if n := w.Node(id); n == nil || n.kind != kind {
			return false
		}
	}
	return true
}

// CurrentMaterial returns the material of the last-selected face, the
// common material of all selected brushes' faces if they agree, or
// false if there is no well-defined current material.
func (s Selection) CurrentMaterial(w *World) (string, bool) {
	if len(s.faceOrder) > 0 {
		last := s.faceOrder[len(s.faceOrder)-1]
		if n := w.Node(last.Node); n != nil && n.brush != nil && last.Face < len(n.brush.Faces) {
			return n.brush.Faces[last.Face].Attrs.Material, true
		}
	}
	var mat string
	set := false
	for _, id := range s.nodeOrder {
		n := w.Node(id)
		if n == nil || n.brush == nil {
			return "", false
		}
		for _, f := range n.brush.Faces {
			if !set {
				mat, set = f.Attrs.Material, true
			} else if f.Attrs.Material != mat {
				return "", false
			}
		}
	}
	return mat, set
}

func (s *Selection) addNode(id NodeID) {
	if s.nodeSet[id] {
		return
	}
	s.nodeSet[id] = true
	s.nodeOrder = append(s.nodeOrder, id)
}

func (s *Selection) removeNode(id NodeID) {
	if !s.nodeSet[id] {
		return
	}
	delete(s.nodeSet, id)
	for i, n := range s.nodeOrder {
		if n == id {
			s.nodeOrder = append(s.nodeOrder[:i], s.nodeOrder[i+1:]...)
			break
		}
	}
}

func (s *Selection) addFace(ref FaceRef) {
	if s.faceSet[ref] {
		return
	}
	s.faceSet[ref] = true
	s.faceOrder = append(s.faceOrder, ref)
}

// clone returns a deep copy, safe to stash in an undo snapshot while the
// live Selection continues to be mutated.
func (s Selection) clone() Selection {
	out := Selection{
		nodeSet:   make(map[NodeID]bool, len(s.nodeSet)),
		nodeOrder: append([]NodeID(nil), s.nodeOrder...),
		faceSet:   make(map[FaceRef]bool, len(s.faceSet)),
		faceOrder: append([]FaceRef(nil), s.faceOrder...),
	}
	for k, v := range s.nodeSet {
		out.nodeSet[k] = v
	}
	for k, v := range s.faceSet {
		out.faceSet[k] = v
	}
	return out
}

func (s *Selection) clear() {
	s.nodeSet = map[NodeID]bool{}
	s.nodeOrder = nil
	s.faceSet = map[FaceRef]bool{}
	s.faceOrder = nil
}

// --- Selectability (spec §4.E) ---------------------------------------

func effectiveState(w *World, id NodeID, get func(*Node) TriState) TriState {
	for cur := id; cur != InvalidNodeID; {
		n := w.Node(cur)
		if n == nil {
			break
		}
		if st := get(n); st != Inherited {
			return st
		}
		cur = n.parent
	}
	return ShownOrUnlocked
}

// EffectiveVisibility resolves id's Hidden/Shown state from the nearest
// non-Inherited ancestor, defaulting to Shown.
func EffectiveVisibility(w *World, id NodeID) TriState {
	return effectiveState(w, id, func(n *Node) TriState { return n.visibility })
}

// EffectiveLock resolves id's Locked/Unlocked state the same way.
func EffectiveLock(w *World, id NodeID) TriState {
	return effectiveState(w, id, func(n *Node) TriState { return n.lock })
}

// Selectable reports whether id may be added to the selection: its
// effective lock is not Locked and its effective visibility is not
// Hidden (spec §4.E: "Selection never includes a node whose effective
// lock state is Locked, nor any descendant of a Hidden ancestor").
func Selectable(w *World, id NodeID) bool {
	return EffectiveLock(w, id) != HiddenOrLocked && EffectiveVisibility(w, id) != HiddenOrLocked
}

// --- Selection operations ---------------------------------------------
// These are the mechanics behind the selection commands named in spec
// §4.E. The command engine (command.go) wraps selectNodes and
// deselectNodes in Commands (selectCommand, deselectCommand) that
// snapshot and restore the prior Selection on undo; the other
// operations here change the selection directly and are not undoable.

func (w *World) selectNodes(ids []NodeID) {
	for _, id := range ids {
		if Selectable(w, id) {
			w.selection.addNode(id)
		}
	}
}

func (w *World) deselectNodes(ids []NodeID) {
	for _, id := range ids {
		w.selection.removeNode(id)
	}
}

func (w *World) deselectAll() { w.selection.clear() }

func (w *World) selectAll() {
	w.selection.clear()
	w.walkSelectable(w.root, func(id NodeID) {
		if n := w.Node(id); n != nil && n.kind != KindWorld && n.kind != KindLayer {
			w.selection.addNode(id)
		}
	})
}

func (w *World) walkSelectable(id NodeID, visit func(NodeID)) {
	n := w.Node(id)
	if n == nil || !Selectable(w, id) {
		return
	}
	visit(id)
	for _, c := range n.children {
		w.walkSelectable(c, visit)
	}
}

// selectSiblings replaces the selection with the siblings (and parents'
// other children) of every currently selected node.
func (w *World) selectSiblings() {
	var result []NodeID
	seen := map[NodeID]bool{}
	for _, id := range w.selection.Nodes() {
		n := w.Node(id)
		if n == nil {
			continue
		}
		parent := w.Node(n.parent)
		if parent == nil {
			continue
		}
		for _, sib := range parent.children {
			if !seen[sib] && Selectable(w, sib) {
				seen[sib] = true
				result = append(result, sib)
			}
		}
	}
	w.selection.clear()
	w.selectNodes(result)
}

// invertSelection selects exactly those selectable nodes within the
// focused container that are neither themselves selected nor have a
// selected/selecting ancestor or descendant (spec §4.E).
func (w *World) invertSelection() {
	container := w.focus.currentContainer(w)
	marked := map[NodeID]bool{}
	for _, id := range w.selection.Nodes() {
		marked[id] = true
		n := w.Node(id)
		for n != nil {
			marked[n.id] = true
			n = w.Node(n.parent)
		}
		markDescendants(w, id, marked)
	}
	var result []NodeID
	w.walkSelectable(container, func(id NodeID) {
		if !marked[id] {
			result = append(result, id)
		}
	})
	w.selection.clear()
	w.selectNodes(result)
}

func markDescendants(w *World, id NodeID, marked map[NodeID]bool) {
	n := w.Node(id)
	if n == nil {
		return
	}
	for _, c := range n.children {
		marked[c] = true
		markDescendants(w, c, marked)
	}
}

// selectAllInLayers selects every selectable node under the given
// layers.
func (w *World) selectAllInLayers(layers []NodeID) {
	w.selection.clear()
	for _, l := range layers {
		w.walkSelectable(l, func(id NodeID) {
			if n := w.Node(id); n != nil && n.kind != KindLayer {
				w.selection.addNode(id)
			}
		})
	}
}

// selectLinkedGroups extends the selection to every Group node sharing
// a link id with an already-selected Group.
func (w *World) selectLinkedGroups() {
	families := map[string]bool{}
	for _, id := range w.selection.Nodes() {
		if n := w.Node(id); n != nil && n.kind == KindGroup {
			families[n.linkID] = true
		}
	}
	var result []NodeID
	w.walkSelectable(w.root, func(id NodeID) {
		if n := w.Node(id); n != nil && n.kind == KindGroup && families[n.linkID] {
			result = append(result, id)
		}
	})
	w.selectNodes(result)
}

// selectByMaterial selects every Brush node with at least one face
// using material.
func (w *World) selectByMaterial(material string) {
	var result []NodeID
	w.walkSelectable(w.root, func(id NodeID) {
		n := w.Node(id)
		if n == nil || n.brush == nil {
			return
		}
		for _, f := range n.brush.Faces {
			if f.Attrs.Material == material {
				result = append(result, id)
				return
			}
		}
	})
	w.selection.clear()
	w.selectNodes(result)
}

// selectByLinePositions resolves file line numbers to nodes, following
// spec §4.E's closed-container granularity rule.
func (w *World) selectByLinePositions(lines []int) []NodeID {
	var result []NodeID
	seen := map[NodeID]bool{}
	for _, ln := range lines {
		if id, ok := w.nodeAtLine(w.root, ln); ok {
			target := w.granularTarget(id)
			if !seen[target] {
				seen[target] = true
				result = append(result, target)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (w *World) nodeAtLine(id NodeID, line int) (NodeID, bool) {
	n := w.Node(id)
	if n == nil {
		return InvalidNodeID, false
	}
	best, found := InvalidNodeID, false
	if n.filePos.FirstLine != 0 {
		lo, hi := n.filePos.FirstLine, n.filePos.FirstLine+n.filePos.LineCount
		if line >= lo && line < hi {
			best, found = id, true
		}
	}
	for _, c := range n.children {
		if cid, ok := w.nodeAtLine(c, line); ok {
			best, found = cid, true
		}
	}
	return best, found
}

// granularTarget walks up from a line-matched node to the nearest
// "closed" Group or childless-match Entity ancestor, per spec §4.E.
func (w *World) granularTarget(id NodeID) NodeID {
	n := w.Node(id)
	if n == nil {
		return id
	}
	cur := id
	for {
		node := w.Node(cur)
		if node == nil || node.parent == InvalidNodeID {
			return cur
		}
		parent := w.Node(node.parent)
		if parent.kind == KindGroup && !w.focus.isOpen(parent.id) {
			cur = parent.id
			continue
		}
		if parent.kind == KindEntity {
			cur = parent.id
			continue
		}
		return cur
	}
}

// convertToFaceSelection replaces every selected Brush node with a
// selection of all of that brush's faces.
func (w *World) convertToFaceSelection() {
	var refs []FaceRef
	for _, id := range w.selection.Nodes() {
		n := w.Node(id)
		if n == nil || n.brush == nil {
			continue
		}
		for i := range n.brush.Faces {
			refs = append(refs, FaceRef{Node: id, Face: i})
		}
	}
	w.selection.clear()
	for _, r := range refs {
		w.selection.addFace(r)
	}
}

// selectBrushFaces adds the given face refs to the selection.
func (w *World) selectBrushFaces(refs []FaceRef) {
	for _, r := range refs {
		if Selectable(w, r.Node) {
			w.selection.addFace(r)
		}
	}
}

// --- selectTouching / selectContaining (spec §4.E) ----------------------
//
// The query volume is the union of the convex hulls of the currently
// selected brushes (Map_Selection.cpp): containment requires every
// vertex of a candidate node to lie inside one query brush's half-space
// intersection; touching only requires the candidate's bounds to
// overlap a query brush's bounds. Neither test considers a brush that
// is itself part of the query.

// selectTouching replaces the selection with every selectable Brush or
// Entity whose bounds overlap the bounds of a currently selected brush.
// If del, the original query brushes are removed afterward as one
// undoable transaction; the selection change is not part of it.
func (w *World) selectTouching(del bool) error {
	return w.selectByQueryHulls(del, false)
}

// selectContaining replaces the selection with every selectable Brush
// or Entity fully contained within the convex hull of a currently
// selected brush. If del, the original query brushes are removed
// afterward as one undoable transaction; the selection change is not
// part of it.
func (w *World) selectContaining(del bool) error {
	return w.selectByQueryHulls(del, true)
}

type queryHull struct {
	planes []geom.Plane
	bounds geom.Bounds3
}

func (w *World) selectByQueryHulls(del bool, requireContainment bool) error {
	var hulls []queryHull
	var queryBrushes []NodeID
	excluded := map[NodeID]bool{}
	for _, id := range w.selection.Nodes() {
		n := w.Node(id)
		if n == nil || n.kind != KindBrush || n.brush == nil {
			continue
		}
		excluded[id] = true
		queryBrushes = append(queryBrushes, id)
		planes := make([]geom.Plane, 0, len(n.brush.Faces))
		for _, f := range n.brush.Faces {
			if p, ok := f.Plane(); ok {
				planes = append(planes, p)
			}
		}
		hulls = append(hulls, queryHull{planes: planes, bounds: w.LogicalBounds(id)})
	}
	if len(hulls) == 0 {
		return nil
	}

	var result []NodeID
	w.walkSelectable(w.root, func(id NodeID) {
		if excluded[id] {
			return
		}
		n := w.Node(id)
		if n == nil || (n.kind != KindBrush && n.kind != KindEntity) {
			return
		}
		bounds := w.LogicalBounds(id)
		if !bounds.Valid() {
			return
		}
		for _, hull := range hulls {
			if !hull.bounds.Intersects(bounds) {
				continue
			}
			if !requireContainment {
				result = append(result, id)
				return
			}
			if nodeVerticesInsideHull(w, n, hull) {
				result = append(result, id)
				return
			}
		}
	})

	w.selection.clear()
	w.selectNodes(result)

	if !del || len(queryBrushes) == 0 {
		return nil
	}
	w.BeginTransaction("select and delete")
	for _, id := range queryBrushes {
		if w.Node(id) == nil {
			continue
		}
		if err := w.Execute(&removeNodeCommand{id: id}); err != nil {
			w.Rollback()
			return err
		}
	}
	return w.Commit()
}

// nodeVerticesInsideHull reports whether every vertex of n's own
// geometric representation satisfies every plane of hull: a brush's
// mesh vertices, or a bounding-box's corners for anything else (patch,
// entity) that has no half-space mesh of its own.
func nodeVerticesInsideHull(w *World, n *Node, hull queryHull) bool {
	var verts []geom.Vec3
	if n.kind == KindBrush && n.brush != nil && n.brush.Mesh() != nil {
		verts = n.brush.Mesh().Vertices
	} else {
		corners := w.LogicalBounds(n.id).Corners()
		verts = corners[:]
	}
	if len(verts) == 0 {
		return false
	}
	for _, v := range verts {
		for _, p := range hull.planes {
			if p.SignedDistance(v) > geom.Epsilon*4 {
				return false
			}
		}
	}
	return true
}
