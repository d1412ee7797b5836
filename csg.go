package mapkit

// csgFragment is one candidate surviving successive plane clipping: its
// faces plus the mesh buildBrushMesh already proved valid for them, so
// Execute never has to re-derive or re-validate geometry it already
// built during planning.
type csgFragment struct {
	faces []Face
	mesh  *BrushMesh
}

// flipFace negates a face's implied plane by swapping its winding: the
// cross product p1-p0 × p2-p0 reverses sign, so Normal and Dist both
// flip, producing the exact complementary half-space (geom.PlaneFromPoints).
func flipFace(f Face) Face {
	return Face{P0: f.P0, P1: f.P2, P2: f.P1, Attrs: f.Attrs}
}

// subtractFaces computes minuendFaces minus the convex region bounded by
// clipFaces via successive plane clipping: the complement of a convex
// region decomposes into at most len(clipFaces) convex pieces, piece i
// bounded by clipFaces[0..i-1] (unflipped, i.e. still inside those) and
// flipFace(clipFaces[i]). Each candidate is validated the same way any
// other brush is (buildBrushMesh); a candidate with fewer than 4
// vertices just isn't part of the result. A clip brush that fully
// covers the minuend yields no fragments at all.
func subtractFaces(minuendFaces, clipFaces []Face) []csgFragment {
	var out []csgFragment
	for i := range clipFaces {
		candidate := make([]Face, 0, len(minuendFaces)+i+1)
		candidate = append(candidate, minuendFaces...)
		candidate = append(candidate, clipFaces[:i]...)
		candidate = append(candidate, flipFace(clipFaces[i]))
		mesh, err := buildBrushMesh(candidate)
		if err != nil {
			continue
		}
		out = append(out, csgFragment{faces: candidate, mesh: mesh})
	}
	return out
}

// csgSubtractCommand computes, for every Brush sharing a parent with one
// of subtrahends, minuend − union(subtrahends under that parent), and
// deletes the subtrahends themselves: they are the cutting tool, not
// part of the result (grounded on CsgTest.cpp's csgSubtract cases,
// where the selected brush(es) disappear whether or not anything
// remained to cut). spec §8 Scenario E is the degenerate case: a
// single minuend fully covered by the clip brush, so both vanish.
type csgSubtractCommand struct {
	subtrahends []NodeID
}

type csgMinuendOutcome struct {
	minuend      NodeID
	priorFaces   []Face
	removed      bool
	removedSnap  *removeNodeSnapshot
	createdExtra []NodeID
}

type csgSubtractSnapshot struct {
	subtrahendSnaps map[NodeID]*removeNodeSnapshot
	minuends        []csgMinuendOutcome
	priorSelection  []NodeID
}

func (c *csgSubtractCommand) Execute(w *World) (Snapshot, error) {
	if len(c.subtrahends) == 0 {
		return nil, newErr(KindStructural, "csgSubtract: no subtrahends given")
	}

	subSet := map[NodeID]bool{}
	var parentOrder []NodeID
	byParent := map[NodeID][]NodeID{}
	for _, id := range c.subtrahends {
		n := w.Node(id)
		if n == nil || n.kind != KindBrush || n.brush == nil {
			return nil, newErr(KindStructural, "csgSubtract: subtrahend is not a brush")
		}
		subSet[id] = true
		if _, ok := byParent[n.parent]; !ok {
			parentOrder = append(parentOrder, n.parent)
		}
		byParent[n.parent] = append(byParent[n.parent], id)
	}

	type minuendPlan struct {
		id        NodeID
		parent    NodeID
		fragments []csgFragment
	}
	var plans []minuendPlan

	for _, parent := range parentOrder {
		subs := byParent[parent]
		p := w.Node(parent)
		if p == nil {
			continue
		}
		var subFaces [][]Face
		for _, s := range subs {
			subFaces = append(subFaces, w.Node(s).brush.Faces)
		}

		for _, childID := range p.children {
			if subSet[childID] {
				continue
			}
			child := w.Node(childID)
			if child == nil || child.kind != KindBrush || child.brush == nil {
				continue
			}
			frags := []csgFragment{{faces: append([]Face(nil), child.brush.Faces...)}}
			for _, sf := range subFaces {
				var next []csgFragment
				for _, frag := range frags {
					next = append(next, subtractFaces(frag.faces, sf)...)
				}
				frags = next
				if len(frags) == 0 {
					break
				}
			}
			plans = append(plans, minuendPlan{id: childID, parent: parent, fragments: frags})
		}
	}

	snap := &csgSubtractSnapshot{
		subtrahendSnaps: map[NodeID]*removeNodeSnapshot{},
		priorSelection:  append([]NodeID(nil), w.selection.Nodes()...),
	}

	var survivors []NodeID
	for _, plan := range plans {
		outcome := csgMinuendOutcome{minuend: plan.id, priorFaces: append([]Face(nil), w.Node(plan.id).brush.Faces...)}
		if len(plan.fragments) == 0 {
			rc := &removeNodeCommand{id: plan.id}
			rsnap, err := rc.Execute(w)
			if err != nil {
				return nil, err
			}
			outcome.removed = true
			outcome.removedSnap = rsnap.(*removeNodeSnapshot)
		} else {
			m := w.node(plan.id)
			m.brush.Faces = plan.fragments[0].faces
			m.brush.mesh = plan.fragments[0].mesh
			w.invalidateBounds(plan.id)
			survivors = append(survivors, plan.id)
			for _, extra := range plan.fragments[1:] {
				child := w.newNode(KindBrush, plan.parent)
				child.brush = &BrushData{Faces: extra.faces, mesh: extra.mesh}
				w.attachChild(plan.parent, child.id)
				w.index.addNode(w, child.id)
				w.links.addEntityNode(w, child.id)
				outcome.createdExtra = append(outcome.createdExtra, child.id)
				survivors = append(survivors, child.id)
			}
		}
		snap.minuends = append(snap.minuends, outcome)
	}

	for _, id := range c.subtrahends {
		rc := &removeNodeCommand{id: id}
		rsnap, err := rc.Execute(w)
		if err != nil {
			return nil, err
		}
		snap.subtrahendSnaps[id] = rsnap.(*removeNodeSnapshot)
	}

	w.selection.clear()
	if len(survivors) > 0 {
		w.selectNodes(survivors)
	}
	return snap, nil
}

func (c *csgSubtractCommand) Undo(w *World, snap Snapshot) error {
	s := snap.(*csgSubtractSnapshot)

	for id, rsnap := range s.subtrahendSnaps {
		rc := &removeNodeCommand{id: id}
		if err := rc.Undo(w, rsnap); err != nil {
			return err
		}
	}

	for i := len(s.minuends) - 1; i >= 0; i-- {
		o := s.minuends[i]
		for j := len(o.createdExtra) - 1; j >= 0; j-- {
			id := o.createdExtra[j]
			if n := w.Node(id); n != nil {
				w.detachChild(n.parent, id)
			}
			w.deleteNode(id)
		}
		if o.removed {
			rc := &removeNodeCommand{id: o.minuend}
			if err := rc.Undo(w, o.removedSnap); err != nil {
				return err
			}
		} else {
			m := w.Node(o.minuend)
			if m == nil || m.brush == nil {
				return newErr(KindStructural, "csgSubtract undo: minuend missing")
			}
			m.brush.Faces = o.priorFaces
			m.brush.mesh = nil
			w.invalidateBounds(o.minuend)
		}
	}

	w.selection.clear()
	if len(s.priorSelection) > 0 {
		w.selectNodes(s.priorSelection)
	}
	return nil
}

func (c *csgSubtractCommand) ModifiesDocument() bool { return true }

// CsgSubtract subtracts the current selection (the clip brushes) from
// every sibling brush sharing a parent with one of them, then removes
// the selection itself, running as one undoable command (spec §8
// Scenario E).
func (w *World) CsgSubtract() error {
	subs := append([]NodeID(nil), w.selection.Nodes()...)
	if len(subs) == 0 {
		return newErr(KindStructural, "csgSubtract: selection is empty")
	}
	return w.Execute(&csgSubtractCommand{subtrahends: subs})
}
