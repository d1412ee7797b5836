package mapkit

import (
	"testing"

	"github.com/brushforge/mapkit/geom"
)

func TestCheckContainmentRejectsLayerUnderGroup(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	group := w.newNode(KindGroup, layer)
	group.group = &GroupData{Name: "g"}
	w.attachChild(layer, group.id)

	otherLayer := w.newNode(KindLayer, w.root)
	otherLayer.layer = &LayerData{Name: "extra"}
	w.attachChild(w.root, otherLayer.id)

	if err := w.MoveNode(otherLayer.id, group.id, -1); err == nil {
		t.Fatalf("expected reparenting a Layer under a Group to fail")
	} else if e, ok := err.(*Error); !ok || e.Kind != KindStructural {
		t.Fatalf("expected a KindStructural error, got %v", err)
	}
	if w.Node(otherLayer.id).parent != w.root {
		t.Errorf("expected the failed move to leave the layer under the world")
	}
}

func TestMoveNodeOutOfGroupReparentsAndIsUndoable(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	group := w.newNode(KindGroup, layer)
	group.group = &GroupData{Name: "g"}
	w.attachChild(layer, group.id)

	brush := w.newNode(KindBrush, group.id)
	brush.brush = &BrushData{Faces: cubeFaces(geom.Vec3{}, geom.Vec3{X: 16, Y: 16, Z: 16})}
	w.attachChild(group.id, brush.id)

	if err := w.MoveNode(brush.id, layer, -1); err != nil {
		t.Fatalf("unexpected error moving brush out of group: %v", err)
	}
	if w.Node(brush.id).parent != layer {
		t.Fatalf("expected brush reparented under the layer")
	}
	if w.Node(group.id) != nil {
		t.Errorf("expected the group, left with no children by the move, to be collapsed away")
	}

	if err := w.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if w.Node(brush.id).parent != group.id {
		t.Errorf("expected undo to restore the brush under the group")
	}
}

func TestMoveNodeOutOfLinkedGroupResetsLinkIDsAndClearsProtected(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	linkID := w.freshLinkID()
	a := buildLinkedGroup(w, layer, geom.Vec3{}, linkID)
	b := buildLinkedGroup(w, layer, geom.Vec3{X: 100}, linkID)
	if err := w.initializeLinkIds([]NodeID{layer}); err != nil {
		t.Fatalf("initializeLinkIds: %v", err)
	}

	aEnt := w.Node(a.children[0])
	aEnt.entity.ProtectedProperties = map[string]bool{"targetname": true}
	aEnt.entity.Set("targetname", "keep_me")
	entLinkID := aEnt.linkID
	if entLinkID == "" {
		t.Fatalf("expected the entity to have a positional link id")
	}

	if err := w.MoveNode(aEnt.id, layer, -1); err != nil {
		t.Fatalf("unexpected error moving entity out of its linked group: %v", err)
	}
	if aEnt.linkID != "" {
		t.Errorf("expected link id reset after leaving every linked family, got %q", aEnt.linkID)
	}
	if len(aEnt.entity.ProtectedProperties) != 0 {
		t.Errorf("expected protected properties cleared after the cross-family move")
	}
	if !aEnt.entity.ProtectedPropertiesClearedOnRelink {
		t.Errorf("expected the cleared-on-relink flag to be set")
	}
	issues := ValidateNodes(w, []NodeID{aEnt.id}, DefaultValidators(32))
	found := false
	for _, iss := range issues {
		if iss.Type == IssueProtectedPropertiesClearedOnRelink {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the validator to report the cleared-protected-properties warning")
	}

	if err := w.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if aEnt.linkID != entLinkID {
		t.Errorf("expected undo to restore the entity's link id, got %q want %q", aEnt.linkID, entLinkID)
	}
	if v, _ := aEnt.entity.Get("targetname"); v != "keep_me" {
		t.Errorf("expected undo to restore targetname, got %q", v)
	}
	if !aEnt.entity.ProtectedProperties["targetname"] {
		t.Errorf("expected undo to restore the protected-properties set")
	}
	if aEnt.entity.ProtectedPropertiesClearedOnRelink {
		t.Errorf("expected undo to clear the cleared-on-relink flag")
	}

	_ = b
}
