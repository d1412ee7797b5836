package mapkit

import "github.com/brushforge/mapkit/geom"

// Snapshot is the opaque state a Command's Execute returns and its Undo
// consumes to restore the world exactly (spec §4.G).
type Snapshot interface{}

// Command is the unit of undoable mutation (spec §4.G). Every change to
// the scene, selection, visibility, lock, or property state goes
// through one.
type Command interface {
	Execute(w *World) (Snapshot, error)
	Undo(w *World, snap Snapshot) error
	ModifiesDocument() bool
}

// Collator is the optional interface a Command implements to coalesce
// with the command already on top of the undo stack (spec §4.G: used
// for consecutive text-field edits, consecutive translations).
type Collator interface {
	Collate(previous Command) (merged Command, ok bool)
}

type historyEntry struct {
	cmd      Command
	snap     Snapshot
	modifies bool
}

type transaction struct {
	name    string
	entries []historyEntry
}

// engine is the World's command history: two LIFO stacks plus the
// transaction stack (spec §4.G). Grounded on the teacher's discipline of
// one synchronous, atomic mutation pass with no hidden callbacks; no
// direct undo-stack precedent exists anywhere in the retrieved pack.
type engine struct {
	undo              []historyEntry
	redo              []historyEntry
	txStack           []*transaction
	modificationCount int
}

// ModificationCount returns the engine's running modification counter
// (spec §4.G): it increases on commit of any modifying command,
// decreases on undo, increases on redo.
func (w *World) ModificationCount() int { return w.engine.modificationCount }

// Execute runs cmd and, outside any open transaction, pushes it (or a
// collated replacement) onto the undo stack and runs the empty-container
// collapse pass. Inside an open transaction, the command accumulates
// into the current frame instead of being individually pushed.
func (w *World) Execute(cmd Command) error {
	snap, err := cmd.Execute(w)
	if err != nil {
		return err
	}
	entry := historyEntry{cmd: cmd, snap: snap, modifies: cmd.ModifiesDocument()}

	if n := len(w.engine.txStack); n > 0 {
		tx := w.engine.txStack[n-1]
		tx.entries = append(tx.entries, entry)
		return nil
	}

	w.pushUndo(entry)
	if entry.modifies {
		w.engine.modificationCount++
	}
	w.collapseEmptyContainers()
	return nil
}

func (w *World) pushUndo(entry historyEntry) {
	w.engine.redo = nil
	if n := len(w.engine.undo); n > 0 {
		if c, ok := entry.cmd.(Collator); ok {
			if merged, did := c.Collate(w.engine.undo[n-1].cmd); did {
				w.engine.undo[n-1] = historyEntry{cmd: merged, snap: entry.snap, modifies: entry.modifies}
				return
			}
		}
	}
	w.engine.undo = append(w.engine.undo, entry)
}

// BeginTransaction pushes a new transaction frame (spec §4.G). Commands
// executed while it is open accumulate into the frame instead of each
// being pushed individually.
func (w *World) BeginTransaction(name string) {
	w.engine.txStack = append(w.engine.txStack, &transaction{name: name})
}

// Commit closes the innermost open transaction, pushing the accumulated
// commands as a single composite undo entry (or folding them into the
// parent transaction if nested). An empty transaction (no commands ran)
// pushes nothing.
func (w *World) Commit() error {
	n := len(w.engine.txStack)
	if n == 0 {
		return newErr(KindStructural, "Commit: no open transaction")
	}
	tx := w.engine.txStack[n-1]
	w.engine.txStack = w.engine.txStack[:n-1]
	if len(tx.entries) == 0 {
		return nil
	}
	composite := &transactionCommand{name: tx.name, entries: tx.entries}

	if len(w.engine.txStack) > 0 {
		parent := w.engine.txStack[len(w.engine.txStack)-1]
		parent.entries = append(parent.entries, historyEntry{cmd: composite, modifies: composite.ModifiesDocument()})
		return nil
	}

	modifies := composite.ModifiesDocument()
	w.pushUndo(historyEntry{cmd: composite, modifies: modifies})
	if modifies {
		w.engine.modificationCount++
	}
	w.collapseEmptyContainers()
	return nil
}

// Rollback closes the innermost open transaction, undoing its
// accumulated commands in reverse and discarding the frame entirely
// (spec §4.G; also backs `throwExceptionDuringCommand`'s guarantee that
// no half-state is visible after a failed command).
func (w *World) Rollback() error {
	n := len(w.engine.txStack)
	if n == 0 {
		return newErr(KindStructural, "Rollback: no open transaction")
	}
	tx := w.engine.txStack[n-1]
	w.engine.txStack = w.engine.txStack[:n-1]
	for i := len(tx.entries) - 1; i >= 0; i-- {
		if err := tx.entries[i].cmd.Undo(w, tx.entries[i].snap); err != nil {
			return err
		}
	}
	return nil
}

// Undo reverts the most recent top-level command or transaction.
func (w *World) Undo() error {
	n := len(w.engine.undo)
	if n == 0 {
		return newErr(KindStructural, "Undo: history is empty")
	}
	e := w.engine.undo[n-1]
	if err := e.cmd.Undo(w, e.snap); err != nil {
		return err
	}
	w.engine.undo = w.engine.undo[:n-1]
	w.engine.redo = append(w.engine.redo, e)
	if e.modifies {
		w.engine.modificationCount--
	}
	return nil
}

// Redo re-applies the most recently undone command or transaction.
func (w *World) Redo() error {
	n := len(w.engine.redo)
	if n == 0 {
		return newErr(KindStructural, "Redo: nothing to redo")
	}
	e := w.engine.redo[n-1]
	snap, err := e.cmd.Execute(w)
	if err != nil {
		return err
	}
	w.engine.redo = w.engine.redo[:n-1]
	e.snap = snap
	w.engine.undo = append(w.engine.undo, e)
	if e.modifies {
		w.engine.modificationCount++
	}
	return nil
}

// transactionCommand bundles the commands accumulated by one
// BeginTransaction/Commit frame into a single undo entry.
type transactionCommand struct {
	name    string
	entries []historyEntry
}

func (t *transactionCommand) Execute(w *World) (Snapshot, error) {
	for i := range t.entries {
		snap, err := t.entries[i].cmd.Execute(w)
		if err != nil {
			for j := i - 1; j >= 0; j-- {
				t.entries[j].cmd.Undo(w, t.entries[j].snap)
			}
			return nil, err
		}
		t.entries[i].snap = snap
	}
	return nil, nil
}

func (t *transactionCommand) Undo(w *World, _ Snapshot) error {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if err := t.entries[i].cmd.Undo(w, t.entries[i].snap); err != nil {
			return err
		}
	}
	return nil
}

func (t *transactionCommand) ModifiesDocument() bool {
	for _, e := range t.entries {
		if e.modifies {
			return true
		}
	}
	return false
}

// --- Empty-container collapse (spec §3.3, §4.G) ------------------------

func (w *World) collapseEmptyContainers() {
	var removed []historyEntry
	for {
		id, ok := w.findCollapsibleContainer(w.root)
		if !ok {
			break
		}
		cmd := &removeNodeCommand{id: id}
		snap, err := cmd.Execute(w)
		if err != nil {
			break
		}
		removed = append(removed, historyEntry{cmd: cmd, snap: snap, modifies: true})
	}
	if len(removed) == 0 || len(w.engine.undo) == 0 {
		return
	}
	top := w.engine.undo[len(w.engine.undo)-1]
	w.engine.undo[len(w.engine.undo)-1] = historyEntry{
		cmd:      &transactionCommand{name: "collapse", entries: append([]historyEntry{top}, removed...)},
		modifies: true,
	}
}

func (w *World) findCollapsibleContainer(id NodeID) (NodeID, bool) {
	n := w.Node(id)
	if n == nil {
		return InvalidNodeID, false
	}
	if n.kind == KindGroup && len(n.children) == 0 {
		return id, true
	}
	if n.kind == KindEntity && len(n.children) == 0 && n.entity != nil && n.entity.Definition != nil && !n.entity.Definition.PointEntity {
		return id, true
	}
	for _, c := range n.children {
		if found, ok := w.findCollapsibleContainer(c); ok {
			return found, true
		}
	}
	return InvalidNodeID, false
}

// --- removeNodeCommand: the one concrete Command every other mutation
// (collapse, explicit deletes, linked-group child replacement) builds
// on top of. ----------------------------------------------------------

type removeNodeCommand struct {
	id NodeID
}

type removeNodeSnapshot struct {
	parent NodeID
	index  int
	node   *Node
	subtree []*Node // node plus every descendant, pre-order, for reinsertion into the arena on undo.
}

func (c *removeNodeCommand) Execute(w *World) (Snapshot, error) {
	n := w.Node(c.id)
	if n == nil {
		return nil, newErr(KindStructural, "removeNode: unknown node")
	}
	parent := n.parent
	idx := w.detachChild(parent, c.id)

	var subtree []*Node
	collectSubtree(w, c.id, &subtree)
	for _, sn := range subtree {
		w.index.removeNode(w, sn.id)
		w.links.removeEntityNode(sn.id)
		w.nodes[sn.id.slot()] = nil
	}

	return &removeNodeSnapshot{parent: parent, index: idx, node: n, subtree: subtree}, nil
}

func collectSubtree(w *World, id NodeID, out *[]*Node) {
	n := w.Node(id)
	if n == nil {
		return
	}
	*out = append(*out, n)
	for _, c := range n.children {
		collectSubtree(w, c, out)
	}
}

func (c *removeNodeCommand) Undo(w *World, snap Snapshot) error {
	s := snap.(*removeNodeSnapshot)
	for _, sn := range s.subtree {
		w.nodes[sn.id.slot()] = sn
		w.index.addNode(w, sn.id)
		w.links.addEntityNode(w, sn.id)
	}
	w.attachChildAt(s.parent, s.node.id, s.index)
	return nil
}

func (c *removeNodeCommand) ModifiesDocument() bool { return true }

// --- setPropertyCommand: illustrates Collate coalescing consecutive
// edits to the same key on the same entity into one undo step. --------

type setPropertyCommand struct {
	node     NodeID
	key      string
	value    string
	hadPrior bool
	prior    string
	linked   *linkedGroupSnapshot
}

func (c *setPropertyCommand) Execute(w *World) (Snapshot, error) {
	n := w.Node(c.node)
	if n == nil || n.entity == nil {
		return nil, newErr(KindStructural, "setProperty: not an entity")
	}
	prior, ok := n.entity.Get(c.key)
	c.hadPrior, c.prior = ok, prior
	n.entity.Set(c.key, c.value)
	w.index.reindex(w, c.node)
	w.links.reindex(w, c.node)

	linked, err := w.propagateFromTouched(c.node)
	if err != nil {
		if c.hadPrior {
			n.entity.Set(c.key, c.prior)
		} else {
			n.entity.Remove(c.key)
		}
		w.index.reindex(w, c.node)
		w.links.reindex(w, c.node)
		return nil, err
	}
	c.linked = linked
	return nil, nil
}

func (c *setPropertyCommand) Undo(w *World, _ Snapshot) error {
	w.undoPropagation(c.linked)
	n := w.Node(c.node)
	if n == nil || n.entity == nil {
		return newErr(KindStructural, "setProperty undo: not an entity")
	}
	if c.hadPrior {
		n.entity.Set(c.key, c.prior)
	} else {
		n.entity.Remove(c.key)
	}
	w.index.reindex(w, c.node)
	w.links.reindex(w, c.node)
	return nil
}

func (c *setPropertyCommand) ModifiesDocument() bool { return true }

func (c *setPropertyCommand) Collate(previous Command) (Command, bool) {
	p, ok := previous.(*setPropertyCommand)
	if !ok || p.node != c.node || p.key != c.key {
		return nil, false
	}
	merged := &setPropertyCommand{node: c.node, key: c.key, value: c.value, hadPrior: p.hadPrior, prior: p.prior, linked: c.linked}
	return merged, true
}

// --- transformCommand wraps World.Transform as an undoable unit,
// snapshotting just enough of the subtree to restore it verbatim. -----

type transformCommand struct {
	root NodeID
	t    *geom.Mat4
	opts TransformOptions
}

type transformSnapshot struct {
	brushes  map[NodeID][]Face
	patches  map[NodeID][]PatchPoint
	entities map[NodeID][]property
	groups   map[NodeID]*geom.Mat4
	linked   *linkedGroupSnapshot
}

func (c *transformCommand) Execute(w *World) (Snapshot, error) {
	snap := &transformSnapshot{
		brushes:  map[NodeID][]Face{},
		patches:  map[NodeID][]PatchPoint{},
		entities: map[NodeID][]property{},
		groups:   map[NodeID]*geom.Mat4{},
	}
	w.walkAll(c.root, func(n *Node) {
		switch n.kind {
		case KindBrush:
			snap.brushes[n.id] = append([]Face(nil), n.brush.Faces...)
		case KindPatch:
			snap.patches[n.id] = append([]PatchPoint(nil), n.patch.Grid...)
		case KindEntity:
			if n.entity != nil {
				snap.entities[n.id] = n.entity.Properties()
			}
		case KindGroup:
			if n.group != nil && n.group.Transform != nil {
				clone := *n.group.Transform
				snap.groups[n.id] = &clone
			}
		}
	})
	if err := w.Transform(c.root, c.t, c.opts); err != nil {
		return nil, err
	}

	linked, err := w.propagateFromTouched(c.root)
	if err != nil {
		restoreTransformSnapshot(w, c.root, snap)
		return nil, err
	}
	snap.linked = linked
	return snap, nil
}

func (c *transformCommand) Undo(w *World, snap Snapshot) error {
	s := snap.(*transformSnapshot)
	w.undoPropagation(s.linked)
	restoreTransformSnapshot(w, c.root, s)
	return nil
}

func restoreTransformSnapshot(w *World, root NodeID, snap *transformSnapshot) {
	for id, faces := range snap.brushes {
		n := w.node(id)
		n.brush.Faces = faces
		n.brush.mesh = nil
	}
	for id, grid := range snap.patches {
		n := w.node(id)
		n.patch.Grid = grid
	}
	for id, props := range snap.entities {
		n := w.node(id)
		n.entity.props = props
	}
	for id, tr := range snap.groups {
		n := w.node(id)
		n.group.Transform = tr
	}
	w.invalidateBounds(root)
}

func (c *transformCommand) ModifiesDocument() bool { return true }

// --- selection/visibility/lock commands --------------------------------

type selectionSnapshot struct{ prior Selection }

type selectCommand struct{ ids []NodeID }

func (c *selectCommand) Execute(w *World) (Snapshot, error) {
	snap := &selectionSnapshot{prior: w.selection.clone()}
	w.selectNodes(c.ids)
	return snap, nil
}
func (c *selectCommand) Undo(w *World, snap Snapshot) error {
	w.selection = snap.(*selectionSnapshot).prior
	return nil
}
func (c *selectCommand) ModifiesDocument() bool { return false }

type deselectCommand struct{ ids []NodeID }

func (c *deselectCommand) Execute(w *World) (Snapshot, error) {
	snap := &selectionSnapshot{prior: w.selection.clone()}
	w.deselectNodes(c.ids)
	return snap, nil
}
func (c *deselectCommand) Undo(w *World, snap Snapshot) error {
	w.selection = snap.(*selectionSnapshot).prior
	return nil
}
func (c *deselectCommand) ModifiesDocument() bool { return false }

type setVisibilityCommand struct {
	id    NodeID
	state TriState
}

type visibilitySnapshot struct {
	priorSelection Selection
	prior          map[NodeID]TriState
}

func (c *setVisibilityCommand) Execute(w *World) (Snapshot, error) {
	prior := map[NodeID]TriState{}
	w.walkAll(c.id, func(n *Node) { prior[n.id] = n.visibility })
	snap := &visibilitySnapshot{priorSelection: w.selection.clone(), prior: prior}
	w.setVisibility(c.id, c.state)
	return snap, nil
}
func (c *setVisibilityCommand) Undo(w *World, snap Snapshot) error {
	s := snap.(*visibilitySnapshot)
	for id, st := range s.prior {
		if n := w.node(id); n != nil {
			n.visibility = st
		}
	}
	w.selection = s.priorSelection
	return nil
}
func (c *setVisibilityCommand) ModifiesDocument() bool { return false }

type setLockCommand struct {
	id    NodeID
	state TriState
}

type lockSnapshot struct {
	priorSelection Selection
	prior          map[NodeID]TriState
}

func (c *setLockCommand) Execute(w *World) (Snapshot, error) {
	prior := map[NodeID]TriState{}
	w.walkAll(c.id, func(n *Node) { prior[n.id] = n.lock })
	snap := &lockSnapshot{priorSelection: w.selection.clone(), prior: prior}
	w.setLock(c.id, c.state)
	return snap, nil
}
func (c *setLockCommand) Undo(w *World, snap Snapshot) error {
	s := snap.(*lockSnapshot)
	for id, st := range s.prior {
		if n := w.node(id); n != nil {
			n.lock = st
		}
	}
	w.selection = s.priorSelection
	return nil
}
func (c *setLockCommand) ModifiesDocument() bool { return false }
