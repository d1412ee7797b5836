package mapkit

import (
	"testing"

	"github.com/brushforge/mapkit/geom"
)

// buildLinkedGroup creates a Group containing one non-point Entity with
// a single cube Brush, attaches it under layer, and returns the group.
func buildLinkedGroup(w *World, layer NodeID, origin geom.Vec3, linkID string) *Node {
	group := w.newNode(KindGroup, layer)
	group.group = &GroupData{Name: "g", Transform: geom.Translate4(origin.X, origin.Y, origin.Z)}
	group.linkID = linkID
	w.attachChild(layer, group.id)

	ent := w.newNode(KindEntity, group.id)
	ent.entity = &EntityData{Definition: &EntityDefinition{Classname: "func_detail", PointEntity: false}}
	ent.entity.Set("classname", "func_detail")
	w.attachChild(group.id, ent.id)

	brush := w.newNode(KindBrush, ent.id)
	brush.brush = &BrushData{Faces: cubeFaces(geom.Vec3{}, geom.Vec3{X: 16, Y: 16, Z: 16})}
	w.attachChild(ent.id, brush.id)

	return group
}

func TestInitializeLinkIdsCongruentPair(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	linkID := w.freshLinkID()
	a := buildLinkedGroup(w, layer, geom.Vec3{}, linkID)
	b := buildLinkedGroup(w, layer, geom.Vec3{X: 100}, linkID)

	if err := w.initializeLinkIds([]NodeID{layer}); err != nil {
		t.Fatalf("unexpected congruence error: %v", err)
	}

	aEnt, bEnt := w.Node(a.children[0]), w.Node(b.children[0])
	if aEnt.linkID == "" || aEnt.linkID != bEnt.linkID {
		t.Fatalf("expected matching positional link ids on the congruent entities")
	}
	aBrush, bBrush := w.Node(aEnt.children[0]), w.Node(bEnt.children[0])
	if aBrush.linkID == "" || aBrush.linkID != bBrush.linkID {
		t.Fatalf("expected matching positional link ids on the congruent brushes")
	}
}

func TestInitializeLinkIdsIncongruentPairUnlinks(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	linkID := w.freshLinkID()
	a := buildLinkedGroup(w, layer, geom.Vec3{}, linkID)
	b := buildLinkedGroup(w, layer, geom.Vec3{X: 100}, linkID)

	// Give b an extra brush, breaking structural congruence with a.
	bEnt := w.Node(b.children[0])
	extra := w.newNode(KindBrush, bEnt.id)
	extra.brush = &BrushData{Faces: cubeFaces(geom.Vec3{}, geom.Vec3{X: 8, Y: 8, Z: 8})}
	w.attachChild(bEnt.id, extra.id)

	err := w.initializeLinkIds([]NodeID{layer})
	if err == nil {
		t.Fatalf("expected a congruence error")
	}
	if w.Node(b.id).linkID == linkID {
		t.Errorf("expected the incongruent group to receive a fresh link id")
	}
	if w.Node(a.id).linkID != linkID {
		t.Errorf("expected the first group in the family to keep its link id")
	}
}

func TestUpdateLinkedGroupsPropagatesTransform(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	linkID := w.freshLinkID()
	a := buildLinkedGroup(w, layer, geom.Vec3{}, linkID)
	b := buildLinkedGroup(w, layer, geom.Vec3{X: 100}, linkID)
	if err := w.initializeLinkIds([]NodeID{layer}); err != nil {
		t.Fatalf("initializeLinkIds: %v", err)
	}

	// Move a's brush 5 units on X; its group transform stays put (the
	// group's own Transform models the group's placement, not its
	// contents' local geometry), so we transform the brush directly.
	aEnt := w.Node(a.children[0])
	aBrush := w.Node(aEnt.children[0])
	cmd := &transformCommand{root: aBrush.id, t: geom.Translate4(5, 0, 0), opts: TransformOptions{}}
	if err := w.Execute(cmd); err != nil {
		t.Fatalf("execute transform: %v", err)
	}

	bEnt := w.Node(b.children[0])
	bBrush := w.Node(bEnt.children[0])
	if len(bBrush.brush.Faces) == 0 {
		t.Fatalf("expected target brush to still have faces after propagation")
	}
	wantX := bBrush.brush.Faces[0].Attrs // sanity: material survives the clone.
	if wantX.Material != "wood" {
		t.Errorf("expected material to survive propagation, got %q", wantX.Material)
	}
	if got, want := bBrush.brush.Faces[0].P0.X, aBrush.brush.Faces[0].P0.X+100; got != want {
		t.Errorf("expected the target brush to follow the source's move to x=%v, got %v", want, got)
	}
}

func TestUpdateLinkedGroupsProtectedProperty(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	linkID := w.freshLinkID()
	a := buildLinkedGroup(w, layer, geom.Vec3{}, linkID)
	b := buildLinkedGroup(w, layer, geom.Vec3{X: 100}, linkID)
	if err := w.initializeLinkIds([]NodeID{layer}); err != nil {
		t.Fatalf("initializeLinkIds: %v", err)
	}

	bEnt := w.Node(b.children[0])
	bEnt.entity.ProtectedProperties = map[string]bool{"targetname": true}
	bEnt.entity.Set("targetname", "keep_me")

	aEnt := w.Node(a.children[0])
	aEnt.entity.Set("targetname", "should_not_overwrite")
	aEnt.entity.Set("message", "propagate_me")

	worldBounds := w.RootData().Bounds
	result, err := w.updateLinkedGroups(a.id, []NodeID{b.id}, worldBounds)
	if err != nil {
		t.Fatalf("updateLinkedGroups: %v", err)
	}
	clones := result[b.id]
	entClone := clones[0].node
	if v, _ := entClone.entity.Get("targetname"); v != "keep_me" {
		t.Errorf("expected protected property to keep the target's value, got %q", v)
	}
	if v, _ := entClone.entity.Get("message"); v != "propagate_me" {
		t.Errorf("expected unprotected property to propagate from the source, got %q", v)
	}
}

func TestMergeProtectedPropertiesKeepsTargetOnlyKey(t *testing.T) {
	existing := &Node{entity: &EntityData{ProtectedProperties: map[string]bool{"spawnflags": true}}}
	existing.entity.Set("spawnflags", "4")
	src := &EntityData{}
	src.Set("message", "hello")

	dst := &EntityData{ProtectedProperties: copyBoolSet(existing)}
	mergeProtectedProperties(dst, src, existing)

	if v, _ := dst.Get("spawnflags"); v != "4" {
		t.Errorf("expected protected key absent from the source to keep the target's value, got %q", v)
	}
	if v, _ := dst.Get("message"); v != "hello" {
		t.Errorf("expected unprotected key to propagate from the source, got %q", v)
	}
}

func TestMergeProtectedPropertiesWithholdsNewlyAddedProtectedKey(t *testing.T) {
	existing := &Node{entity: &EntityData{ProtectedProperties: map[string]bool{"targetname": true}}}
	src := &EntityData{}
	src.Set("targetname", "new_from_source")

	dst := &EntityData{ProtectedProperties: copyBoolSet(existing)}
	mergeProtectedProperties(dst, src, existing)

	if v, ok := dst.Get("targetname"); ok {
		t.Errorf("expected a newly added protected key to be withheld, got %q", v)
	}
}

func TestUpdateLinkedGroupsRejectsWorldBoundsViolation(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	linkID := w.freshLinkID()
	a := buildLinkedGroup(w, layer, geom.Vec3{}, linkID)
	_ = buildLinkedGroup(w, layer, geom.Vec3{X: 8190}, linkID)
	if err := w.initializeLinkIds([]NodeID{layer}); err != nil {
		t.Fatalf("initializeLinkIds: %v", err)
	}

	bGroup := w.Node(layer).children[1]
	_, err := w.updateLinkedGroups(a.id, []NodeID{bGroup}, w.RootData().Bounds)
	if err == nil {
		t.Fatalf("expected propagation to a near-boundary group to fail once its brush clone leaves world bounds")
	}
}

func TestResetLinkIds(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	linkID := w.freshLinkID()
	a := buildLinkedGroup(w, layer, geom.Vec3{}, linkID)
	oldEntLinkID := w.Node(a.children[0]).linkID

	w.resetLinkIds([]NodeID{a.id})

	if w.Node(a.id).linkID == linkID {
		t.Errorf("expected the group to receive a fresh link id")
	}
	if w.Node(a.children[0]).linkID == oldEntLinkID {
		t.Errorf("expected the entity to receive a fresh link id too")
	}
}
