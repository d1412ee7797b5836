package mapkit

import "github.com/brushforge/mapkit/geom"

// initializeLinkIds walks every pair of Group nodes sharing a link id
// and checks structural congruence (spec §4.H.1): same node variants in
// the same order at every depth. A congruent pair additionally receives
// matching per-position link ids on their descendant Entities, Brushes
// and Patches, so later propagation can map source-child to target-
// child by position. An incongruent pair is unlinked: the link id is
// kept only on the first group encountered, and an error is returned
// (processing continues for the remaining pairs).
func (w *World) initializeLinkIds(roots []NodeID) error {
	byLink := map[string][]NodeID{}
	for _, r := range roots {
		w.walkAll(r, func(n *Node) {
			if n.kind == KindGroup && n.linkID != "" {
				byLink[n.linkID] = append(byLink[n.linkID], n.id)
			}
		})
	}

	var firstErr error
	for linkID, members := range byLink {
		if len(members) < 2 {
			continue
		}
		first := members[0]
		for _, other := range members[1:] {
			if !w.congruent(first, other) {
				w.node(other).linkID = w.freshLinkID()
				if firstErr == nil {
					firstErr = linkedGroupErr(linkID, "group %d is not structurally congruent with group %d", other, first)
				}
				continue
			}
			w.assignPositionalLinkIds(first, other)
		}
	}
	return firstErr
}

// congruent reports whether a and b's subtrees have the same variant at
// every node, in the same order, at every depth.
func (w *World) congruent(a, b NodeID) bool {
	na, nb := w.Node(a), w.Node(b)
	if na == nil || nb == nil {
		return false
	}
	if na.kind != nb.kind {
		return false
	}
	if len(na.children) != len(nb.children) {
		return false
	}
	for i := range na.children {
		if !w.congruent(na.children[i], nb.children[i]) {
			return false
		}
	}
	return true
}

// assignPositionalLinkIds gives each of b's descendants (in congruent
// position) the same link id as its counterpart in a, for Entities,
// Brushes and Patches — Groups keep their own independent link ids.
func (w *World) assignPositionalLinkIds(a, b NodeID) {
	na, nb := w.Node(a), w.Node(b)
	if na == nil || nb == nil {
		return
	}
	for i := range na.children {
		ca, cb := w.node(na.children[i]), w.node(nb.children[i])
		if ca.kind != KindGroup {
			if ca.linkID == "" {
				ca.linkID = w.freshLinkID()
			}
			cb.linkID = ca.linkID
		}
		w.assignPositionalLinkIds(ca.id, cb.id)
	}
}

// resetLinkIds generates fresh link ids for the given groups and all of
// their descendants (spec §4.H.3).
func (w *World) resetLinkIds(groups []NodeID) {
	for _, g := range groups {
		w.walkAll(g, func(n *Node) {
			n.linkID = w.freshLinkID()
		})
	}
}

// clonedSubtree is a not-yet-arena-allocated copy produced while
// propagation is still being validated; applyClonedSubtree assigns real
// NodeIDs once every target has passed the world-bounds check.
type clonedSubtree struct {
	node     *Node
	children []*clonedSubtree
}

// updateLinkedGroups propagates source's children to every other member
// of its linked family (spec §4.H.2). Propagation is never triggered for
// source itself. It validates every produced node against worldBounds
// and returns an error touching nothing if any violates it; otherwise it
// returns the per-target replacement child subtrees for the caller
// (propagateFromTouched) to swap in atomically.
func (w *World) updateLinkedGroups(source NodeID, targets []NodeID, worldBounds geom.Bounds3) (map[NodeID][]*clonedSubtree, error) {
	src := w.Node(source)
	if src == nil || src.kind != KindGroup {
		return nil, newErr(KindStructural, "updateLinkedGroups: source is not a Group")
	}
	srcT := groupTransform(src)
	srcInv, ok := new(geom.Mat4).Invert(srcT)
	if !ok {
		return nil, newErr(KindGeometry, "updateLinkedGroups: source group transform is singular")
	}

	result := map[NodeID][]*clonedSubtree{}
	for _, targetID := range targets {
		if targetID == source {
			continue
		}
		tgt := w.Node(targetID)
		if tgt == nil || tgt.kind != KindGroup {
			continue
		}
		tgtT := groupTransform(tgt)
		T := new(geom.Mat4).Mult(tgtT, srcInv)

		newChildren := make([]*clonedSubtree, len(src.children))
		for i, scID := range src.children {
			sc := w.Node(scID)
			var existing *Node
			if i < len(tgt.children) {
				existing = w.Node(tgt.children[i])
			}
			clone, err := w.cloneTree(sc, existing, T, true, worldBounds)
			if err != nil {
				return nil, linkedGroupErr(tgt.linkID, "propagation to group %d failed: %v", targetID, err)
			}
			newChildren[i] = clone
		}
		result[targetID] = newChildren
	}
	return result, nil
}

func groupTransform(n *Node) *geom.Mat4 {
	if n.group != nil && n.group.Transform != nil {
		return n.group.Transform
	}
	return geom.Identity4()
}

// cloneTree deep-clones src (and, recursively, its children), applying T
// only while apply is true. Entering a nested Group switches apply to
// false: "Nested Group children retain their own link ids; their
// transformations are not composed with T (their own propagation is a
// separate step)" (spec §4.H.2).
func (w *World) cloneTree(src, existing *Node, T *geom.Mat4, apply bool, worldBounds geom.Bounds3) (*clonedSubtree, error) {
	clone := &Node{kind: src.kind, visibility: src.visibility, lock: src.lock, linkID: src.linkID}
	childApply := apply

	switch src.kind {
	case KindGroup:
		gd := *src.group
		clone.group = &gd
		childApply = false // nested group's own subtree is copied verbatim.
	case KindEntity:
		ed := &EntityData{Definition: src.entity.Definition, ProtectedProperties: copyBoolSet(existing)}
		mergeProtectedProperties(ed, src.entity, existing)
		clone.entity = ed
		if apply {
			if origin, ok := entityOrigin(ed); ok {
				ed.Set("origin", formatVec3(T.TransformPoint(origin)))
			}
			rotateEntityProperties(ed, T)
		}
	case KindBrush:
		bd := &BrushData{Faces: make([]Face, len(src.brush.Faces))}
		for i, f := range src.brush.Faces {
			nf := f
			if apply {
				nf.P0, nf.P1, nf.P2 = T.TransformPoint(f.P0), T.TransformPoint(f.P1), T.TransformPoint(f.P2)
				if T.IsRigid() {
					nf.P0, nf.P1, nf.P2 = nf.P0.Round(), nf.P1.Round(), nf.P2.Round()
				}
			}
			bd.Faces[i] = nf // UV lock forced on: attributes carried through unchanged.
		}
		mesh, err := buildBrushMesh(bd.Faces)
		if err != nil {
			return nil, err
		}
		bd.mesh = mesh
		clone.brush = bd
	case KindPatch:
		pd := &PatchData{Rows: src.patch.Rows, Cols: src.patch.Cols, Material: src.patch.Material, Grid: make([]PatchPoint, len(src.patch.Grid))}
		for i, p := range src.patch.Grid {
			np := p
			if apply {
				np.Pos = T.TransformPoint(p.Pos)
			}
			pd.Grid[i] = np
		}
		clone.patch = pd
	}

	out := &clonedSubtree{node: clone}
	for i, scID := range src.children {
		sc := w.Node(scID)
		var childExisting *Node
		if existing != nil && i < len(existing.children) {
			childExisting = w.Node(existing.children[i])
		}
		childT := T
		if !childApply {
			childT = geom.Identity4()
		}
		cc, err := w.cloneTree(sc, childExisting, childT, childApply, worldBounds)
		if err != nil {
			return nil, err
		}
		out.children = append(out.children, cc)
	}

	b := w.computeClonedModelBounds(clone)
	for _, c := range out.children {
		b = b.Merge(w.computeClonedModelBounds(c.node))
	}
	if b.Valid() && !worldBounds.ContainsBounds(b) {
		return nil, newErr(KindWorldBounds, "propagated node would leave world bounds")
	}
	return out, nil
}

func (w *World) computeClonedModelBounds(n *Node) geom.Bounds3 {
	switch n.kind {
	case KindBrush:
		b := geom.EmptyBounds3()
		if n.brush.mesh != nil {
			for _, v := range n.brush.mesh.Vertices {
				b = b.Expand(v)
			}
		}
		return b
	case KindPatch:
		b := geom.EmptyBounds3()
		for _, p := range n.patch.Grid {
			b = b.Expand(p.Pos)
		}
		return b
	case KindEntity:
		if n.entity != nil && n.entity.Definition != nil {
			if origin, ok := entityOrigin(n.entity); ok {
				def := n.entity.Definition.DefaultBounds
				return geom.Bounds3{Min: *new(geom.Vec3).Add(def.Min, origin), Max: *new(geom.Vec3).Add(def.Max, origin)}
			}
		}
		return geom.EmptyBounds3()
	default:
		return geom.EmptyBounds3()
	}
}

// applyClonedSubtree allocates real arena nodes for clone (and its
// descendants), parenting them under parent, and returns the allocated
// NodeID.
func (w *World) applyClonedSubtree(clone *clonedSubtree, parent NodeID) NodeID {
	n := w.newNode(clone.node.kind, parent)
	n.visibility, n.lock, n.linkID = clone.node.visibility, clone.node.lock, clone.node.linkID
	n.group, n.entity, n.brush, n.patch = clone.node.group, clone.node.entity, clone.node.brush, clone.node.patch
	for _, c := range clone.children {
		n.children = append(n.children, w.applyClonedSubtree(c, n.id))
	}
	w.index.addNode(w, n.id)
	w.links.addEntityNode(w, n.id)
	return n.id
}

// --- Implicit propagation hook (spec §4.G, §4.H.2) ---------------------
//
// "A command that mutates a node inside a linked group implicitly
// triggers linked-group propagation as part of the same undoable unit;
// if propagation fails... the command fails and the world is left
// unchanged." setPropertyCommand and transformCommand call
// propagateFromTouched after their own mutation succeeds, and roll that
// mutation back themselves if it returns an error.

// linkedGroupSnapshot records, per propagated target Group, the child
// list it had before propagation replaced it — enough to restore the
// target verbatim on undo.
type linkedGroupSnapshot struct {
	targets map[NodeID][]NodeID
}

// sourceGroupFor returns the nearest Group ancestor of id (or id itself,
// if it is one) that carries a link id, and whether one was found.
func (w *World) sourceGroupFor(id NodeID) (NodeID, bool) {
	for cur := id; cur != InvalidNodeID; {
		n := w.Node(cur)
		if n == nil {
			return InvalidNodeID, false
		}
		if n.kind == KindGroup && n.linkID != "" {
			return n.id, true
		}
		cur = n.parent
	}
	return InvalidNodeID, false
}

// linkFamily returns every Group sharing source's link id, other than
// source itself.
func (w *World) linkFamily(source NodeID) []NodeID {
	linkID := w.Node(source).linkID
	var out []NodeID
	w.walkAll(w.root, func(n *Node) {
		if n.kind == KindGroup && n.id != source && n.linkID == linkID {
			out = append(out, n.id)
		}
	})
	return out
}

// propagateFromTouched triggers linked-group propagation if id lives
// inside (or is) a linked Group, returning nil, nil when it does not.
func (w *World) propagateFromTouched(id NodeID) (*linkedGroupSnapshot, error) {
	source, ok := w.sourceGroupFor(id)
	if !ok {
		return nil, nil
	}
	family := w.linkFamily(source)
	if len(family) == 0 {
		return nil, nil
	}
	results, err := w.updateLinkedGroups(source, family, w.RootData().Bounds)
	if err != nil {
		return nil, err
	}

	snap := &linkedGroupSnapshot{targets: map[NodeID][]NodeID{}}
	for target, newChildren := range results {
		tgt := w.node(target)
		old := append([]NodeID(nil), tgt.children...)
		deindexSubtrees(w, old)

		ids := make([]NodeID, len(newChildren))
		for i, c := range newChildren {
			ids[i] = w.applyClonedSubtree(c, target)
		}
		tgt.children = ids
		w.invalidateBounds(target)
		snap.targets[target] = old
	}
	return snap, nil
}

// undoPropagation reverses propagateFromTouched's child-list swaps.
func (w *World) undoPropagation(snap *linkedGroupSnapshot) {
	if snap == nil {
		return
	}
	for target, old := range snap.targets {
		tgt := w.node(target)
		deindexSubtrees(w, tgt.children)
		tgt.children = old
		reindexSubtrees(w, old)
		w.invalidateBounds(target)
	}
}

func deindexSubtrees(w *World, ids []NodeID) {
	for _, id := range ids {
		var sub []*Node
		collectSubtree(w, id, &sub)
		for _, sn := range sub {
			w.index.removeNode(w, sn.id)
			w.links.removeEntityNode(sn.id)
		}
	}
}

func reindexSubtrees(w *World, ids []NodeID) {
	for _, id := range ids {
		var sub []*Node
		collectSubtree(w, id, &sub)
		for _, sn := range sub {
			w.index.addNode(w, sn.id)
			w.links.addEntityNode(w, sn.id)
		}
	}
}

func copyBoolSet(existing *Node) map[string]bool {
	if existing == nil || existing.entity == nil {
		return map[string]bool{}
	}
	out := map[string]bool{}
	for k, v := range existing.entity.ProtectedProperties {
		out[k] = v
	}
	return out
}

// mergeProtectedProperties fills dst's properties from src, honoring
// spec §4.H.4's protected-property rules: a protected key keeps the
// (pre-propagation) target's value whenever the target had one, whether
// or not the source still carries that key; a key the source adds that
// the target never had is withheld if the target protects it, and
// propagates normally otherwise.
func mergeProtectedProperties(dst *EntityData, src *EntityData, existing *Node) {
	existingProps := map[string]string{}
	if existing != nil && existing.entity != nil {
		for _, p := range existing.entity.Properties() {
			existingProps[p.Key] = p.Value
		}
	}
	seen := map[string]bool{}
	for _, p := range src.Properties() {
		seen[p.Key] = true
		existingVal, hadExisting := existingProps[p.Key]
		switch {
		case dst.ProtectedProperties[p.Key] && hadExisting:
			dst.Set(p.Key, existingVal)
		case dst.ProtectedProperties[p.Key] && !hadExisting:
			// target protects this key but never had a value; the
			// source's newly added value is not let in.
		default:
			dst.Set(p.Key, p.Value)
		}
	}
	for key := range dst.ProtectedProperties {
		if seen[key] {
			continue
		}
		if v, ok := existingProps[key]; ok {
			dst.Set(key, v)
		}
	}
}
