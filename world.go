package mapkit

import (
	"strconv"
	"strings"

	"github.com/brushforge/mapkit/geom"
)

// World is the root of one scene (spec §3.1) and the entry point for
// every other component: it owns the node arena, the property index,
// the entity-link manager, the selection/visibility state, and the
// command engine that gates all mutation.
//
// World is not safe for concurrent use while a command is executing
// (spec §5): the core is single-threaded cooperative. Read-only queries
// are safe from any goroutine provided no command is in flight.
type World struct {
	ids   *nodeIDs
	nodes []*Node // indexed by NodeID.slot(); nodes[0] is always nil.
	root  NodeID

	index *PropertyIndex
	links *LinkManager

	selection Selection
	focus     focusStack

	engine engine

	nextPersistentID uint64
}

// NewWorld creates an empty World: a root World node with exactly one
// default Layer and no other children (spec §3.1, §8 property 10).
func NewWorld(format MapFormat, cfg EntityPropertyConfig) *World {
	w := &World{ids: newNodeIDs(), index: newPropertyIndex(), links: newLinkManager(), selection: newSelection()}
	w.nodes = append(w.nodes, nil) // slot 0 reserved.

	root := w.newNode(KindWorld, InvalidNodeID)
	root.world = &WorldData{Format: format, Bounds: DefaultWorldBounds(), PropConfig: cfg}
	w.root = root.id

	def := w.newNode(KindLayer, root.id)
	def.layer = &LayerData{Name: "Default Layer", SortIndex: DefaultLayerSortIndex}
	def.linkID = w.freshLinkID()
	w.setPersistentID(def, w.allocPersistentID())
	root.children = append(root.children, def.id)
	root.world.DefaultLayer = def.id
	w.focus.setCurrentLayer(def.id)

	return w
}

// Root returns the world node's id.
func (w *World) Root() NodeID { return w.root }

// RootData returns the world node's WorldData payload.
func (w *World) RootData() *WorldData { return w.node(w.root).world }

// DefaultLayer returns the id of the mandatory default layer.
func (w *World) DefaultLayer() NodeID { return w.RootData().DefaultLayer }

// Node returns the node for id, or nil if id does not refer to a live
// node in this world.
func (w *World) Node(id NodeID) *Node {
	if !w.ids.valid(id) {
		return nil
	}
	return w.nodes[id.slot()]
}

// node is the unchecked internal accessor used once an id is already
// known to be valid (eg because it came from a child list).
func (w *World) node(id NodeID) *Node { return w.nodes[id.slot()] }

// newNode allocates a bare node of the given kind under parent and
// registers it in the arena, but does not attach it to the parent's
// child list — callers finish wiring it up (used both by NewWorld's
// bootstrap and by commands).
func (w *World) newNode(kind Kind, parent NodeID) *Node {
	id := w.ids.create()
	n := &Node{id: id, kind: kind, parent: parent, visibility: Inherited, lock: Inherited}
	slot := int(id.slot())
	for slot >= len(w.nodes) {
		w.nodes = append(w.nodes, nil)
	}
	w.nodes[slot] = n
	return n
}

// deleteNode removes id from the arena entirely. Callers must have
// already detached it from its parent's child list and disposed of its
// descendants.
func (w *World) deleteNode(id NodeID) {
	w.index.removeNode(w, id)
	w.links.removeEntityNode(id)
	slot := id.slot()
	if int(slot) < len(w.nodes) {
		w.nodes[slot] = nil
	}
	w.ids.dispose(id)
}

func (w *World) allocPersistentID() uint64 {
	w.nextPersistentID++
	return w.nextPersistentID
}

func (w *World) setPersistentID(n *Node, id uint64) { n.persistentID = &id }

// freshLinkID returns a new, collision-free link id (spec §3.1, §4.H.3).
func (w *World) freshLinkID() string { return newLinkID() }

// attachChild appends child to parent's child list and sets child's
// parent pointer, then invalidates bounds up the tree. It does not
// validate containment invariants; callers (commands) must do that
// first via checkContainment.
func (w *World) attachChild(parent, child NodeID) {
	p, c := w.node(parent), w.node(child)
	c.parent = parent
	p.children = append(p.children, child)
	w.invalidateBounds(parent)
}

// attachChildAt inserts child into parent's child list at index idx.
func (w *World) attachChildAt(parent, child NodeID, idx int) {
	p, c := w.node(parent), w.node(child)
	c.parent = parent
	if idx < 0 || idx > len(p.children) {
		idx = len(p.children)
	}
	p.children = append(p.children, InvalidNodeID)
	copy(p.children[idx+1:], p.children[idx:])
	p.children[idx] = child
	w.invalidateBounds(parent)
}

// detachChild removes child from parent's child list, returning the
// index it occupied (or -1 if not found).
func (w *World) detachChild(parent, child NodeID) int {
	p := w.node(parent)
	for i, id := range p.children {
		if id == child {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			w.invalidateBounds(parent)
			return i
		}
	}
	return -1
}

// checkContainment validates spec §3.2's containment invariants for
// placing child under parent, returning a *Error(KindStructural) if
// violated.
func (w *World) checkContainment(parent, child NodeID) error {
	p, c := w.node(parent), w.node(child)
	switch c.kind {
	case KindLayer:
		if p.kind != KindWorld {
			return newErr(KindStructural, "only a World may contain Layers")
		}
	case KindGroup, KindEntity:
		if !p.CanHoldSceneNodes() {
			return newErr(KindStructural, "%s may not contain a %s", p.kind, c.kind)
		}
	case KindBrush, KindPatch:
		if p.kind == KindEntity {
			if p.IsPointEntity() {
				return newErr(KindStructural, "point entities may not contain brushes or patches")
			}
		} else if !p.CanHoldSceneNodes() {
			return newErr(KindStructural, "brushes and patches must be inside an entity, layer, or group")
		}
	default:
		return newErr(KindStructural, "world nodes may not be reparented")
	}
	return nil
}

// invalidateBounds clears id's cached bounds and every ancestor's, per
// spec §4.B ("any mutation clears the cache on the node and propagates
// up through ancestors").
func (w *World) invalidateBounds(id NodeID) {
	for id != InvalidNodeID {
		n := w.Node(id)
		if n == nil {
			return
		}
		n.bounds.clear()
		id = n.parent
	}
}

// LogicalBounds returns id's logical bounds, recomputing and caching it
// (along with the model bounds and its children's logical bounds) if
// necessary. Logical bounds contain the logical
// bounds of all children (spec §3.2, §8 property 3).
func (w *World) LogicalBounds(id NodeID) geom.Bounds3 {
	n := w.Node(id)
	if n == nil {
		return geom.EmptyBounds3()
	}
	if n.bounds.logical != nil {
		return *n.bounds.logical
	}
	b := w.computeModelBounds(n)
	for _, cid := range n.children {
		b = b.Merge(w.LogicalBounds(cid))
	}
	n.bounds.logical = &b
	return b
}

// PhysicalBounds returns id's physical bounds, cached separately but
// computed the same way as LogicalBounds: a brush contributes its mesh
// vertices when its mesh is built and its face generating points
// otherwise.
func (w *World) PhysicalBounds(id NodeID) geom.Bounds3 {
	n := w.Node(id)
	if n == nil {
		return geom.EmptyBounds3()
	}
	if n.bounds.physical != nil {
		return *n.bounds.physical
	}
	b := w.computeModelBounds(n)
	for _, cid := range n.children {
		b = b.Merge(w.PhysicalBounds(cid))
	}
	n.bounds.physical = &b
	return b
}

// ModelBounds returns id's own geometric extent, excluding children.
func (w *World) ModelBounds(id NodeID) geom.Bounds3 {
	n := w.Node(id)
	if n == nil {
		return geom.EmptyBounds3()
	}
	if n.bounds.model != nil {
		return *n.bounds.model
	}
	return w.computeModelBounds(n)
}

func (w *World) computeModelBounds(n *Node) geom.Bounds3 {
	if n.bounds.model != nil {
		return *n.bounds.model
	}
	var b geom.Bounds3
	switch n.kind {
	case KindBrush:
		b = geom.EmptyBounds3()
		if n.brush.mesh != nil {
			for _, v := range n.brush.mesh.Vertices {
				b = b.Expand(v)
			}
		} else {
			for _, f := range n.brush.Faces {
				b = b.Expand(f.P0).Expand(f.P1).Expand(f.P2)
			}
		}
	case KindPatch:
		b = geom.EmptyBounds3()
		for _, p := range n.patch.Grid {
			b = b.Expand(p.Pos)
		}
	case KindEntity:
		b = geom.EmptyBounds3()
		if n.entity.Definition != nil {
			if origin, ok := entityOrigin(n.entity); ok {
				def := n.entity.Definition.DefaultBounds
				b = geom.Bounds3{Min: *new(geom.Vec3).Add(def.Min, origin), Max: *new(geom.Vec3).Add(def.Max, origin)}
			}
		}
	default:
		b = geom.EmptyBounds3()
	}
	n.bounds.model = &b
	return b
}

func entityOrigin(e *EntityData) (geom.Vec3, bool) {
	v, ok := e.Get("origin")
	if !ok {
		return geom.Vec3{}, false
	}
	x, y, z, ok := parseVec3(v)
	if !ok {
		return geom.Vec3{}, false
	}
	return geom.Vec3{X: x, Y: y, Z: z}, true
}

// parseVec3 parses a whitespace-separated "x y z" triple, tolerant of
// the stray leading/trailing whitespace the reader preserves verbatim
// (spec §4.J, §8 Scenario A's `angle` " -1 ").
func parseVec3(s string) (x, y, z float64, ok bool) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if x, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return 0, 0, 0, false
	}
	if y, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return 0, 0, 0, false
	}
	if z, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return 0, 0, 0, false
	}
	return x, y, z, true
}
