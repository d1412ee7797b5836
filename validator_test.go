package mapkit

import (
	"testing"

	"github.com/brushforge/mapkit/geom"
)

func TestEmptyPropertyValidators(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e := w.newNode(KindEntity, layer)
	e.entity = &EntityData{Definition: &EntityDefinition{Classname: "light", PointEntity: true}}
	e.entity.Set("classname", "light")
	e.entity.Set("", "value")
	e.entity.Set("message", "")
	w.attachChild(layer, e.id)

	issues := ValidateNodes(w, []NodeID{e.id}, DefaultValidators(256))
	var gotKey, gotValue bool
	for _, iss := range issues {
		if iss.Type == IssueEmptyPropertyKey {
			gotKey = true
		}
		if iss.Type == IssueEmptyPropertyValue {
			gotValue = true
		}
	}
	if !gotKey || !gotValue {
		t.Fatalf("expected both empty-key and empty-value issues, got %+v", issues)
	}
}

func TestMissingClassnameAndDefinitionValidators(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	noClassname := w.newNode(KindEntity, layer)
	noClassname.entity = &EntityData{}
	w.attachChild(layer, noClassname.id)

	unregistered := w.newNode(KindEntity, layer)
	unregistered.entity = &EntityData{}
	unregistered.entity.Set("classname", "custom_thing")
	w.attachChild(layer, unregistered.id)

	issues := ValidateNodes(w, []NodeID{noClassname.id, unregistered.id}, DefaultValidators(256))
	var sawMissingClassname, sawMissingDefinition bool
	for _, iss := range issues {
		if iss.Node == noClassname.id && iss.Type == IssueMissingClassname {
			sawMissingClassname = true
		}
		if iss.Node == unregistered.id && iss.Type == IssueMissingDefinition {
			sawMissingDefinition = true
		}
	}
	if !sawMissingClassname {
		t.Errorf("expected MissingClassname issue")
	}
	if !sawMissingDefinition {
		t.Errorf("expected MissingDefinition issue")
	}
}

func TestEmptyBrushEntityValidator(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e := w.newNode(KindEntity, layer)
	e.entity = &EntityData{Definition: &EntityDefinition{Classname: "func_detail", PointEntity: false}}
	e.entity.Set("classname", "func_detail")
	w.attachChild(layer, e.id)

	issues := ValidateNodes(w, []NodeID{e.id}, DefaultValidators(256))
	found := false
	for _, iss := range issues {
		if iss.Type == IssueEmptyBrushEntity {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected EmptyBrushEntity issue for a childless brush entity")
	}
}

func TestWorldBoundsValidatorAndQuickFix(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	brush := w.newNode(KindBrush, layer)
	brush.brush = &BrushData{Faces: cubeFaces(geom.Vec3{X: 8190}, geom.Vec3{X: 8206, Y: 16, Z: 16})}
	w.attachChild(layer, brush.id)
	if err := w.ComputeMesh(brush.id); err != nil {
		t.Fatalf("compute mesh: %v", err)
	}

	validators := DefaultValidators(256)
	issues := ValidateNodes(w, []NodeID{brush.id}, validators)
	var wbIssues []Issue
	for _, iss := range issues {
		if iss.Type == IssueWorldBounds {
			wbIssues = append(wbIssues, iss)
		}
	}
	if len(wbIssues) != 1 {
		t.Fatalf("expected one WorldBounds issue, got %d", len(wbIssues))
	}

	fix := (&worldBoundsValidator{}).QuickFixes()[0]
	if err := fix.Apply(w, wbIssues); err != nil {
		t.Fatalf("apply quick fix: %v", err)
	}
	if w.Node(brush.id) != nil {
		t.Errorf("expected the out-of-bounds brush to be deleted")
	}
	if err := w.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if w.Node(brush.id) == nil {
		t.Errorf("expected undo to restore the deleted brush")
	}
}

func TestPropertyQuoteValidatorsAndQuickFix(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e := w.newNode(KindEntity, layer)
	e.entity = &EntityData{Definition: &EntityDefinition{Classname: "light", PointEntity: true}}
	e.entity.Set("classname", "light")
	e.entity.Set("message", `say "hi"`)
	w.attachChild(layer, e.id)

	validators := DefaultValidators(256)
	issues := ValidateNodes(w, []NodeID{e.id}, validators)
	var valueIssues []Issue
	for _, iss := range issues {
		if iss.Type == IssuePropertyValueWithDoubleQuotes {
			valueIssues = append(valueIssues, iss)
		}
	}
	if len(valueIssues) != 1 {
		t.Fatalf("expected one quoted-value issue, got %d", len(valueIssues))
	}

	fix := (&propertyValueQuotesValidator{}).QuickFixes()[0]
	if err := fix.Apply(w, valueIssues); err != nil {
		t.Fatalf("apply quick fix: %v", err)
	}
	if v, _ := e.entity.Get("message"); v != "say 'hi'" {
		t.Errorf("expected quotes replaced, got %q", v)
	}
}
