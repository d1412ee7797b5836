package mapkit

// reparentCommand moves a node to a new parent (and, optionally, a new
// position within the new parent's children), enforcing the
// containment invariants (spec §3.2, checkContainment) and the link-id
// reset rules for nodes crossing linked-group boundaries (spec §4.H.3).
// Index -1 appends to the end of the new parent's children.
type reparentCommand struct {
	id        NodeID
	newParent NodeID
	index     int
}

type reparentSnapshot struct {
	oldParent NodeID
	oldIndex  int

	linkIDsChanged  map[NodeID]string // id -> prior link id, for every node whose link id was reset
	protectedPrior  map[string]bool   // nil if protected properties were not touched
	clearedFlagPrev bool
	protectedTouched bool

	linked *linkedGroupSnapshot
}

func (c *reparentCommand) Execute(w *World) (Snapshot, error) {
	n := w.Node(c.id)
	if n == nil {
		return nil, newErr(KindStructural, "reparent: unknown node")
	}
	newParent := w.Node(c.newParent)
	if newParent == nil {
		return nil, newErr(KindStructural, "reparent: unknown new parent")
	}
	if c.newParent == c.id || w.isAncestorOf(c.id, c.newParent) {
		return nil, newErr(KindStructural, "reparent: a node may not become its own descendant")
	}
	if err := w.checkContainment(c.newParent, c.id); err != nil {
		return nil, err
	}

	oldParent := n.parent
	oldFamily, oldOk := w.sourceGroupFor(c.id)

	oldIndex := w.detachChild(oldParent, c.id)
	if c.index < 0 || c.index >= len(newParent.children) {
		w.attachChild(c.newParent, c.id)
	} else {
		w.attachChildAt(c.newParent, c.id, c.index)
	}

	newFamily, newOk := w.sourceGroupFor(c.id)
	oldLinkID, newLinkID := "", ""
	if oldOk {
		oldLinkID = w.Node(oldFamily).linkID
	}
	if newOk {
		newLinkID = w.Node(newFamily).linkID
	}

	snap := &reparentSnapshot{oldParent: oldParent, oldIndex: oldIndex}

	if oldLinkID != newLinkID {
		if newOk {
			// Moving into a different (or first) linked group: the node
			// keeps its own link id and the structural-congruence
			// checker re-establishes its position, or the move fails.
			if err := w.initializeLinkIds([]NodeID{w.root}); err != nil {
				w.detachChild(c.newParent, c.id)
				w.attachChildAt(oldParent, c.id, oldIndex)
				return nil, err
			}
		} else {
			// Leaving every linked family: the node and its descendants
			// become independent.
			snap.linkIDsChanged = w.resetSubtreeLinkIDs(c.id)
		}
		if n.kind == KindEntity && n.entity != nil && len(n.entity.ProtectedProperties) > 0 {
			snap.protectedTouched = true
			snap.protectedPrior = n.entity.ProtectedProperties
			snap.clearedFlagPrev = n.entity.ProtectedPropertiesClearedOnRelink
			n.entity.ProtectedProperties = map[string]bool{}
			n.entity.ProtectedPropertiesClearedOnRelink = true
		}
	}

	w.index.reindex(w, c.id)
	w.links.reindex(w, c.id)

	linked, err := w.propagateFromTouched(c.id)
	if err != nil {
		c.undoLinkAndProtectedChanges(w, snap)
		w.detachChild(c.newParent, c.id)
		w.attachChildAt(oldParent, c.id, oldIndex)
		w.index.reindex(w, c.id)
		w.links.reindex(w, c.id)
		return nil, err
	}
	snap.linked = linked
	return snap, nil
}

func (c *reparentCommand) Undo(w *World, snap Snapshot) error {
	s := snap.(*reparentSnapshot)
	w.undoPropagation(s.linked)
	c.undoLinkAndProtectedChanges(w, s)

	n := w.Node(c.id)
	if n == nil {
		return newErr(KindStructural, "reparent undo: unknown node")
	}
	w.detachChild(n.parent, c.id)
	w.attachChildAt(s.oldParent, c.id, s.oldIndex)
	w.index.reindex(w, c.id)
	w.links.reindex(w, c.id)
	return nil
}

func (c *reparentCommand) undoLinkAndProtectedChanges(w *World, s *reparentSnapshot) {
	for id, linkID := range s.linkIDsChanged {
		if n := w.node(id); n != nil {
			n.linkID = linkID
		}
	}
	if s.protectedTouched {
		if n := w.Node(c.id); n != nil && n.entity != nil {
			n.entity.ProtectedProperties = s.protectedPrior
			n.entity.ProtectedPropertiesClearedOnRelink = s.clearedFlagPrev
		}
	}
}

func (c *reparentCommand) ModifiesDocument() bool { return true }

// isAncestorOf reports whether ancestor is id itself or a strict
// ancestor of id, walking parent pointers.
func (w *World) isAncestorOf(ancestor, id NodeID) bool {
	for cur := id; cur != InvalidNodeID; {
		if cur == ancestor {
			return true
		}
		n := w.Node(cur)
		if n == nil {
			return false
		}
		cur = n.parent
	}
	return false
}

// resetSubtreeLinkIDs clears the link id of id and every descendant
// (spec §4.H.3: "resets the brush-entity's link id and all its
// descendants' link ids"), returning the prior values so Undo can
// restore them verbatim.
func (w *World) resetSubtreeLinkIDs(id NodeID) map[NodeID]string {
	prior := map[NodeID]string{}
	w.walkAll(id, func(n *Node) {
		if n.linkID == "" {
			return
		}
		prior[n.id] = n.linkID
		n.linkID = ""
	})
	return prior
}

// MoveNode reparents id under newParent at index (-1 to append),
// running it through the command engine so it is undoable (spec §4.H.3,
// §7: "reparent a Layer under a Group" as the canonical StructuralError).
func (w *World) MoveNode(id, newParent NodeID, index int) error {
	return w.Execute(&reparentCommand{id: id, newParent: newParent, index: index})
}
