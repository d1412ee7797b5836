package mapkit

import (
	"testing"

	"github.com/brushforge/mapkit/geom"
)

func TestSelectionExcludesLockedAndHidden(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()

	locked := w.newNode(KindGroup, layer)
	locked.group = &GroupData{Name: "locked_group"}
	locked.lock = HiddenOrLocked
	w.attachChild(layer, locked.id)

	hiddenParent := w.newNode(KindGroup, layer)
	hiddenParent.group = &GroupData{Name: "hidden_parent"}
	hiddenParent.visibility = HiddenOrLocked
	w.attachChild(layer, hiddenParent.id)
	child := w.newNode(KindGroup, hiddenParent.id)
	child.group = &GroupData{Name: "child"}
	w.attachChild(hiddenParent.id, child.id)

	visible := w.newNode(KindGroup, layer)
	visible.group = &GroupData{Name: "visible"}
	w.attachChild(layer, visible.id)

	w.selectNodes([]NodeID{locked.id, child.id, visible.id})
	got := w.selection.Nodes()
	if len(got) != 1 || got[0] != visible.id {
		t.Fatalf("expected only the visible, unlocked node selected, got %v", got)
	}
}

func TestSetVisibilityRehomesShownDescendants(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	group := w.newNode(KindGroup, layer)
	w.attachChild(layer, group.id)
	child := w.newNode(KindGroup, group.id)
	child.visibility = ShownOrUnlocked
	w.attachChild(group.id, child.id)

	w.setVisibility(group.id, HiddenOrLocked)

	if child.visibility != Inherited {
		t.Errorf("expected explicit Shown child to be rehomed to Inherited, got %v", child.visibility)
	}
	if EffectiveVisibility(w, child.id) != HiddenOrLocked {
		t.Errorf("expected child to now be effectively hidden")
	}
}

func TestSetVisibilityDeselectsSubtree(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	group := w.newNode(KindGroup, layer)
	w.attachChild(layer, group.id)
	w.selectNodes([]NodeID{group.id})

	w.setVisibility(group.id, HiddenOrLocked)

	if w.selection.HasNode(group.id) {
		t.Errorf("hiding a selected node should deselect it")
	}
}

func TestInvertSelection(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	a := w.newNode(KindGroup, layer)
	a.group = &GroupData{Name: "a"}
	w.attachChild(layer, a.id)
	b := w.newNode(KindGroup, layer)
	b.group = &GroupData{Name: "b"}
	w.attachChild(layer, b.id)

	w.focus.setCurrentLayer(layer)
	w.selectNodes([]NodeID{a.id})
	w.invertSelection()

	got := w.selection.Nodes()
	if len(got) != 1 || got[0] != b.id {
		t.Fatalf("expected inverted selection to contain only b, got %v", got)
	}
}

func TestSelectContainingSelectsFullyEnclosedBrush(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()

	query := w.newNode(KindBrush, layer)
	query.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: -100, Y: -100, Z: -100}, geom.Vec3{X: 100, Y: 100, Z: 100})}
	w.attachChild(layer, query.id)
	if err := w.ComputeMesh(query.id); err != nil {
		t.Fatalf("unexpected error computing query mesh: %v", err)
	}

	inside := w.newNode(KindBrush, layer)
	inside.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: -10, Y: -10, Z: -10}, geom.Vec3{X: 10, Y: 10, Z: 10})}
	w.attachChild(layer, inside.id)
	if err := w.ComputeMesh(inside.id); err != nil {
		t.Fatalf("unexpected error computing inside mesh: %v", err)
	}

	outside := w.newNode(KindBrush, layer)
	outside.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 200, Y: 200, Z: 200}, geom.Vec3{X: 220, Y: 220, Z: 220})}
	w.attachChild(layer, outside.id)
	if err := w.ComputeMesh(outside.id); err != nil {
		t.Fatalf("unexpected error computing outside mesh: %v", err)
	}

	w.selectNodes([]NodeID{query.id})
	if err := w.selectContaining(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := w.selection.Nodes()
	if len(got) != 1 || got[0] != inside.id {
		t.Fatalf("expected only the fully enclosed brush selected, got %v", got)
	}
}

func TestSelectTouchingSelectsOverlappingBrushAndDeletesQuery(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()

	query := w.newNode(KindBrush, layer)
	query.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 0, Y: 0, Z: 0}, geom.Vec3{X: 10, Y: 10, Z: 10})}
	w.attachChild(layer, query.id)
	if err := w.ComputeMesh(query.id); err != nil {
		t.Fatalf("unexpected error computing query mesh: %v", err)
	}

	overlapping := w.newNode(KindBrush, layer)
	overlapping.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 5, Y: 5, Z: 5}, geom.Vec3{X: 20, Y: 20, Z: 20})}
	w.attachChild(layer, overlapping.id)
	if err := w.ComputeMesh(overlapping.id); err != nil {
		t.Fatalf("unexpected error computing overlapping mesh: %v", err)
	}

	far := w.newNode(KindBrush, layer)
	far.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 500, Y: 500, Z: 500}, geom.Vec3{X: 520, Y: 520, Z: 520})}
	w.attachChild(layer, far.id)
	if err := w.ComputeMesh(far.id); err != nil {
		t.Fatalf("unexpected error computing far mesh: %v", err)
	}

	w.selectNodes([]NodeID{query.id})
	if err := w.selectTouching(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := w.selection.Nodes()
	if len(got) != 1 || got[0] != overlapping.id {
		t.Fatalf("expected only the overlapping brush selected, got %v", got)
	}
	if w.Node(query.id) != nil {
		t.Errorf("expected the query brush to be deleted")
	}

	if err := w.Undo(); err != nil {
		t.Fatalf("unexpected error undoing: %v", err)
	}
	if w.Node(query.id) == nil {
		t.Errorf("expected undo to restore the deleted query brush")
	}
}

func TestConvertToFaceSelection(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	brush := w.newNode(KindBrush, layer)
	brush.brush = &BrushData{Faces: make([]Face, 6)}
	w.attachChild(layer, brush.id)
	w.selectNodes([]NodeID{brush.id})

	w.convertToFaceSelection()

	faces := w.selection.Faces()
	if len(faces) != 6 {
		t.Fatalf("expected 6 faces selected, got %d", len(faces))
	}
	if !w.selection.Empty() && len(w.selection.Nodes()) != 0 {
		t.Errorf("expected node selection cleared after conversion")
	}
}
