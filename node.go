package mapkit

import "github.com/brushforge/mapkit/geom"

// Kind tags which of the six node variants a Node holds (spec §3.1). Go
// has no open class hierarchy the way the teacher's engine has for its
// scene graph parts, so the variant is expressed as this enum plus a
// set of mutually-exclusive payload pointers on Node, switched over by
// visitors instead of virtual dispatch.
type Kind uint8

const (
	KindWorld Kind = iota
	KindLayer
	KindGroup
	KindEntity
	KindBrush
	KindPatch
)

func (k Kind) String() string {
	switch k {
	case KindWorld:
		return "World"
	case KindLayer:
		return "Layer"
	case KindGroup:
		return "Group"
	case KindEntity:
		return "Entity"
	case KindBrush:
		return "Brush"
	case KindPatch:
		return "Patch"
	default:
		return "Unknown"
	}
}

// TriState is the Inherited/explicit-value tri-state used for
// visibility and lock (spec §3.1, §4.E).
type TriState uint8

const (
	Inherited TriState = iota
	// ShownOrUnlocked is the "on"/permissive explicit state: Shown for
	// visibility, Unlocked for lock.
	ShownOrUnlocked
	// HiddenOrLocked is the "off"/restrictive explicit state.
	HiddenOrLocked
)

// FilePos records where a node was parsed from, used by
// World.SelectByLinePositions (spec §3.1, §4.E).
type FilePos struct {
	FirstLine int
	LineCount int
}

// boundsCache holds the three lazily (re)computed bounds values a node
// carries (spec §4.B). A nil field means "not yet computed"; any
// mutation clears the relevant node's cache and its ancestors'.
type boundsCache struct {
	model    *geom.Bounds3
	logical  *geom.Bounds3
	physical *geom.Bounds3
}

func (c *boundsCache) clear() { c.model, c.logical, c.physical = nil, nil, nil }

// Node is one of {World, Layer, Group, Entity, Brush, Patch}. Every
// node carries the common fields from spec §3.1; variant-specific data
// lives in the payload field matching Kind (exactly one is non-nil).
type Node struct {
	id     NodeID
	kind   Kind
	parent NodeID
	// children is ordered; empty for Brush/Patch (leaves, spec §3.2).
	children []NodeID

	persistentID *uint64
	linkID       string
	visibility   TriState
	lock         TriState
	selected     bool
	filePos      FilePos
	tagBits      uint16

	bounds boundsCache

	world  *WorldData
	layer  *LayerData
	group  *GroupData
	entity *EntityData
	brush  *BrushData
	patch  *PatchData
}

// ID returns the node's stable per-session handle.
func (n *Node) ID() NodeID { return n.id }

// Kind returns which variant n is.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the parent's NodeID, or InvalidNodeID for the world root.
func (n *Node) Parent() NodeID { return n.parent }

// Children returns the node's ordered child id list. The returned slice
// must not be mutated by the caller.
func (n *Node) Children() []NodeID { return n.children }

// PersistentID returns the node's save/load-stable id and whether it has
// one (only Layer and Group carry one, spec §3.1).
func (n *Node) PersistentID() (uint64, bool) {
	if n.persistentID == nil {
		return 0, false
	}
	return *n.persistentID, true
}

// LinkID returns the node's linked-group identity (spec §3.1, §4.H).
func (n *Node) LinkID() string { return n.linkID }

// Selected reports the node's direct selection flag (not ancestor-derived).
func (n *Node) Selected() bool { return n.selected }

// FilePos returns the node's recorded parse-time source span.
func (n *Node) FilePos() FilePos { return n.filePos }

// TagBits returns the node's smart-tag bitmask.
func (n *Node) TagBits() uint16 { return n.tagBits }

// World returns the node's World payload and whether n is a World.
func (n *Node) World() (*WorldData, bool) { return n.world, n.kind == KindWorld }

// Layer returns the node's Layer payload and whether n is a Layer.
func (n *Node) Layer() (*LayerData, bool) { return n.layer, n.kind == KindLayer }

// Group returns the node's Group payload and whether n is a Group.
func (n *Node) Group() (*GroupData, bool) { return n.group, n.kind == KindGroup }

// Entity returns the node's Entity payload and whether n is an Entity.
func (n *Node) Entity() (*EntityData, bool) { return n.entity, n.kind == KindEntity }

// Brush returns the node's Brush payload and whether n is a Brush.
func (n *Node) Brush() (*BrushData, bool) { return n.brush, n.kind == KindBrush }

// Patch returns the node's Patch payload and whether n is a Patch.
func (n *Node) Patch() (*PatchData, bool) { return n.patch, n.kind == KindPatch }

// IsLeaf reports whether n cannot have children (Brush and Patch, spec §3.2).
func (n *Node) IsLeaf() bool { return n.kind == KindBrush || n.kind == KindPatch }

// IsContainer is the complement of IsLeaf.
func (n *Node) IsContainer() bool { return !n.IsLeaf() }

// CanHoldLayers reports whether n may parent Layer children (only World, spec §3.2).
func (n *Node) CanHoldLayers() bool { return n.kind == KindWorld }

// CanHoldSceneNodes reports whether n may parent Group/Entity/Brush/Patch
// children (Layer or Group, spec §3.2).
func (n *Node) CanHoldSceneNodes() bool { return n.kind == KindLayer || n.kind == KindGroup }

// IsPointEntity reports whether n is an Entity whose definition forbids
// brush children or that has no definition at all.
func (n *Node) IsPointEntity() bool {
	if n.entity == nil {
		return false
	}
	return n.entity.Definition == nil || n.entity.Definition.PointEntity
}

// MapFormat enumerates the id-tech map text dialects (spec §3.1).
type MapFormat uint8

const (
	FormatUnknown MapFormat = iota
	FormatStandard
	FormatValve220
	FormatQuake2
	FormatQuake2Valve
	FormatQuake3Legacy
	FormatQuake3
	FormatQuake3Valve
	FormatDaikatana
	FormatHexen2
)

func (f MapFormat) String() string {
	switch f {
	case FormatStandard:
		return "Standard"
	case FormatValve220:
		return "Valve220"
	case FormatQuake2:
		return "Quake2"
	case FormatQuake2Valve:
		return "Quake2Valve"
	case FormatQuake3Legacy:
		return "Quake3Legacy"
	case FormatQuake3:
		return "Quake3"
	case FormatQuake3Valve:
		return "Quake3Valve"
	case FormatDaikatana:
		return "Daikatana"
	case FormatHexen2:
		return "Hexen2"
	default:
		return "Unknown"
	}
}

// EntityPropertyConfig is the per-world entity-property policy (spec
// §3.1). It is constructed by the caller, matching the teacher's
// preference for explicit config structs over global state.
type EntityPropertyConfig struct {
	// DefaultProperties holds default key/value pairs for entities with
	// no matching EntityDefinition. No code in this package reads it, so
	// nothing merges these pairs into an entity.
	DefaultProperties map[string]string
	// AllowedKeys, when non-nil, restricts which property keys a node
	// may carry; nil means unrestricted.
	AllowedKeys map[string]bool
}

// WorldData holds the World-only fields (spec §3.1).
type WorldData struct {
	Format     MapFormat
	Bounds     geom.Bounds3 // symmetric cube, ±8192 by default.
	PropConfig EntityPropertyConfig
	// DefaultLayer is the id of the one mandatory default layer, always
	// world's first child.
	DefaultLayer NodeID
}

// DefaultWorldBounds is the symmetric ±8192 cube spec §3.1 mandates.
func DefaultWorldBounds() geom.Bounds3 {
	return geom.Bounds3{Min: geom.Vec3{X: -8192, Y: -8192, Z: -8192}, Max: geom.Vec3{X: 8192, Y: 8192, Z: 8192}}
}

// DefaultLayerSortIndex is the reserved sentinel that always orders the
// default layer first (spec §3.1).
const DefaultLayerSortIndex = int32(-2147483648)

// LayerData holds the Layer-only fields (spec §3.1).
type LayerData struct {
	Name           string
	Color          *[3]float64
	SortIndex      int32
	OmitFromExport bool
}

// GroupData holds the Group-only fields (spec §3.1, §4.H).
type GroupData struct {
	Name string
	// Transform is nil for a group at identity.
	Transform *geom.Mat4
}

// EntityDefinition is the (externally loaded, spec §1) schema for one
// entity classname: its shape and its typed property schema.
type EntityDefinition struct {
	Classname        string
	PointEntity      bool // true: no brush children permitted.
	DefaultBounds    geom.Bounds3
	DefaultProps     map[string]string
	SourceLinkKeys   map[string]string // property key -> logical bucket name (spec §4.D numbered keys).
	TargetLinkKeys   map[string]bool
}

// property is one (key, value) entry. Entities keep these in an ordered
// slice rather than a map so insertion order and round-trip byte
// fidelity (spec §8 property 7) are preserved.
type property struct {
	Key   string
	Value string
}

// EntityData holds the Entity-only fields (spec §3.1, §4.H.4).
type EntityData struct {
	props      []property
	Definition *EntityDefinition
	// ProtectedProperties lists keys whose local value survives linked
	// group propagation (spec §4.H.4).
	ProtectedProperties map[string]bool
	// ProtectedPropertiesClearedOnRelink is set when a move carried this
	// entity out of the linked family that declared its protected keys,
	// clearing ProtectedProperties (spec §4.H.3, §9 Open Questions).
	// IssueProtectedPropertiesClearedOnRelink surfaces it to the user.
	ProtectedPropertiesClearedOnRelink bool
}

// Get returns the value for key and whether it is present.
func (e *EntityData) Get(key string) (string, bool) {
	for _, p := range e.props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Classname returns the "classname" property value, or "" if absent.
func (e *EntityData) Classname() string {
	v, _ := e.Get("classname")
	return v
}

// Set assigns key=value, preserving the key's existing position, or
// appending it if new (spec §3.1: "unique keys... stable insertion order").
func (e *EntityData) Set(key, value string) {
	for i := range e.props {
		if e.props[i].Key == key {
			e.props[i].Value = value
			return
		}
	}
	e.props = append(e.props, property{key, value})
}

// Remove deletes key if present, reporting whether it was.
func (e *EntityData) Remove(key string) bool {
	for i := range e.props {
		if e.props[i].Key == key {
			e.props = append(e.props[:i], e.props[i+1:]...)
			return true
		}
	}
	return false
}

// Properties returns the entity's (key, value) pairs in insertion order.
// The returned slice is a copy; mutating it has no effect on the entity.
func (e *EntityData) Properties() []property {
	out := make([]property, len(e.props))
	copy(out, e.props)
	return out
}

// FaceAttributes is one face's material and UV metadata (spec §3.1).
type FaceAttributes struct {
	Material string
	XOffset  float64
	YOffset  float64
	Rotation float64
	XScale   float64
	YScale   float64
	// Valve220/axis-basis UV, nil unless the face uses that form.
	UAxis, VAxis *geom.Vec3
	// Quake2-family extensions, nil unless present.
	Contents *int32
	Flags    *int32
	Value    *int32
	// Daikatana color extension.
	Color *[3]uint8
}

// Face is one half-space of a Brush: three generating points plus
// attributes. The plane is always recomputed from the points (spec §4.A).
type Face struct {
	P0, P1, P2 geom.Vec3
	Attrs      FaceAttributes
}

// Plane recomputes the face's plane from its three generating points.
func (f Face) Plane() (geom.Plane, bool) { return geom.PlaneFromPoints(f.P0, f.P1, f.P2) }

// BrushMesh is the vertex/edge/facet mesh derived from intersecting a
// brush's half-spaces (spec §4.A), cached on BrushData and rebuilt
// whenever the faces change.
type BrushMesh struct {
	// Vertices lists each distinct vertex of the convex polyhedron.
	Vertices []geom.Vec3
	// FaceVertices[i] lists, in winding order, the indices into
	// Vertices that bound Faces[i].
	FaceVertices [][]int
}

// BrushData holds the Brush-only fields (spec §3.1, §4.A).
type BrushData struct {
	Faces []Face
	mesh  *BrushMesh // nil until ComputeMesh succeeds.
}

// Mesh returns the brush's cached mesh, or nil if it has not been
// (re)computed since the faces last changed.
func (b *BrushData) Mesh() *BrushMesh { return b.mesh }

// PatchPoint is one control point of a Patch's Bézier grid (spec §3.1).
type PatchPoint struct {
	Pos  geom.Vec3
	U, V float64
}

// PatchData holds the Patch-only fields (spec §3.1). Grid is row-major,
// Rows x Cols, both odd and >= 3.
type PatchData struct {
	Rows, Cols int
	Grid       []PatchPoint
	Material   string
}

// At returns the control point at (row, col).
func (p *PatchData) At(row, col int) PatchPoint { return p.Grid[row*p.Cols+col] }

// Set assigns the control point at (row, col).
func (p *PatchData) Set(row, col int, pt PatchPoint) { p.Grid[row*p.Cols+col] = pt }
