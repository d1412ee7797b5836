package mapkit

import "testing"

func TestExecuteUndoRedoRoundTrip(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e := w.newNode(KindEntity, layer)
	e.entity = &EntityData{}
	w.attachChild(layer, e.id)

	if err := w.Execute(&setPropertyCommand{node: e.id, key: "classname", value: "light"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got, _ := e.entity.Get("classname"); got != "light" {
		t.Fatalf("expected classname set, got %q", got)
	}
	if w.ModificationCount() != 1 {
		t.Errorf("expected modification count 1, got %d", w.ModificationCount())
	}

	if err := w.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, ok := e.entity.Get("classname"); ok {
		t.Errorf("expected classname removed after undo")
	}
	if w.ModificationCount() != 0 {
		t.Errorf("expected modification count back to 0, got %d", w.ModificationCount())
	}

	if err := w.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if got, _ := e.entity.Get("classname"); got != "light" {
		t.Errorf("expected classname restored after redo, got %q", got)
	}
}

func TestSetPropertyCollation(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e := w.newNode(KindEntity, layer)
	e.entity = &EntityData{}
	w.attachChild(layer, e.id)

	w.Execute(&setPropertyCommand{node: e.id, key: "message", value: "h"})
	w.Execute(&setPropertyCommand{node: e.id, key: "message", value: "he"})
	w.Execute(&setPropertyCommand{node: e.id, key: "message", value: "hello"})

	if len(w.engine.undo) != 1 {
		t.Fatalf("expected consecutive edits to the same key to collate into one undo entry, got %d", len(w.engine.undo))
	}
	if err := w.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, ok := e.entity.Get("message"); ok {
		t.Errorf("expected the collated edit to undo back to no value at all")
	}
}

func TestTransactionCommitGroupsAsOneUndo(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e1 := w.newNode(KindEntity, layer)
	e1.entity = &EntityData{}
	w.attachChild(layer, e1.id)
	e2 := w.newNode(KindEntity, layer)
	e2.entity = &EntityData{}
	w.attachChild(layer, e2.id)

	w.BeginTransaction("rename both")
	w.Execute(&setPropertyCommand{node: e1.id, key: "classname", value: "light"})
	w.Execute(&setPropertyCommand{node: e2.id, key: "classname", value: "light"})
	if err := w.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if len(w.engine.undo) != 1 {
		t.Fatalf("expected one composite undo entry, got %d", len(w.engine.undo))
	}
	if err := w.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, ok := e1.entity.Get("classname"); ok {
		t.Errorf("expected e1's classname undone")
	}
	if _, ok := e2.entity.Get("classname"); ok {
		t.Errorf("expected e2's classname undone")
	}
}

func TestTransactionRollbackDiscardsWork(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e := w.newNode(KindEntity, layer)
	e.entity = &EntityData{}
	w.attachChild(layer, e.id)

	w.BeginTransaction("abandoned")
	w.Execute(&setPropertyCommand{node: e.id, key: "classname", value: "light"})
	if err := w.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, ok := e.entity.Get("classname"); ok {
		t.Errorf("expected rollback to undo the accumulated command")
	}
	if len(w.engine.undo) != 0 {
		t.Errorf("expected nothing pushed to the undo stack after rollback")
	}
}

func TestEmptyContainerCollapseAndRestoreOnUndo(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	group := w.newNode(KindGroup, layer)
	group.group = &GroupData{Name: "g"}
	w.attachChild(layer, group.id)
	brush := w.newNode(KindBrush, group.id)
	brush.brush = &BrushData{}
	w.attachChild(group.id, brush.id)

	w.Execute(&removeNodeCommand{id: brush.id})

	if w.Node(group.id) != nil {
		t.Fatalf("expected the now-empty group to be collapsed away")
	}
	if err := w.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if w.Node(group.id) == nil {
		t.Fatalf("expected undo to restore the collapsed group")
	}
	if w.Node(brush.id) == nil {
		t.Fatalf("expected undo to restore the removed brush")
	}
}
