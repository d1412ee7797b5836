package mapkit

// NodeID is a stable per-session handle to a Node, unique within a
// World's arena (spec §9: "model the tree as an arena: a single owning
// container of nodes plus NodeId handles"). A NodeID packs an array
// index and a generation counter into one integer, following the same
// scheme the teacher uses for its entity identifiers: the low bits
// address a slot, the high bits detect stale handles left over from a
// disposed-and-reused slot.
type NodeID uint32

const (
	idBits      = 24                  // arena slot index: 16777215 live nodes.
	genBits     = 8                   // generation       :       255 reuses.
	maxNodeSlot = (1 << idBits) - 1   // mask and max active nodes.
	maxGen      = (1 << genBits) - 1  // mask and max dispose/reuse cycles.
)

func (n NodeID) slot() uint32 { return uint32(n) & maxNodeSlot }
func (n NodeID) gen() uint8   { return uint8((uint32(n) >> idBits) & maxGen) }

// InvalidNodeID is never assigned to a live node; it is the zero value
// and the parent of the world root.
const InvalidNodeID NodeID = 0

// nodeIDs allocates and recycles NodeID values, refusing to hand out a
// stale id after its slot has been reused (adapted from the teacher's
// `eid`/`eids` generational-index allocator in eid.go).
type nodeIDs struct {
	gens []uint8  // generation per slot; grows as slots are allocated.
	free []uint32 // disposed slots available for reuse.
}

func newNodeIDs() *nodeIDs { return &nodeIDs{} }

// create returns a fresh NodeID. Slot 0 is reserved (InvalidNodeID), so
// the first real id starts at slot 1.
func (ids *nodeIDs) create() NodeID {
	var slot uint32
	if len(ids.free) > 0 {
		slot = ids.free[0]
		ids.free = ids.free[1:]
	} else {
		if len(ids.gens) == 0 {
			ids.gens = append(ids.gens, 0) // slot 0 reserved, never handed out.
		}
		ids.gens = append(ids.gens, 0)
		slot = uint32(len(ids.gens) - 1)
	}
	return NodeID(slot | uint32(ids.gens[slot])<<idBits)
}

// valid reports whether n refers to a currently allocated slot.
func (ids *nodeIDs) valid(n NodeID) bool {
	slot := n.slot()
	if slot == 0 || int(slot) >= len(ids.gens) {
		return false
	}
	return ids.gens[slot] == n.gen()
}

// dispose invalidates n's slot and queues it for reuse once its
// generation counter allows (wrapping past maxGen simply stops
// recycling that slot further, which is acceptable: NodeID space is
// large enough that exhaustion is not a practical concern for a single
// editing session).
func (ids *nodeIDs) dispose(n NodeID) {
	slot := n.slot()
	if slot == 0 || int(slot) >= len(ids.gens) {
		return
	}
	if ids.gens[slot] < maxGen {
		ids.gens[slot]++
		ids.free = append(ids.free, slot)
	}
}
