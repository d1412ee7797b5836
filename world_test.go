package mapkit

import (
	"testing"

	"github.com/brushforge/mapkit/geom"
)

func testBounds(x0, y0, z0, x1, y1, z1 float64) geom.Bounds3 {
	return geom.Bounds3{Min: geom.Vec3{X: x0, Y: y0, Z: z0}, Max: geom.Vec3{X: x1, Y: y1, Z: z1}}
}

func newTestWorld() *World {
	return NewWorld(FormatStandard, EntityPropertyConfig{})
}

func TestNewWorldBootstrap(t *testing.T) {
	w := newTestWorld()
	root := w.Node(w.Root())
	if root.kind != KindWorld {
		t.Fatalf("root should be a World, got %s", root.kind)
	}
	if len(root.children) != 1 {
		t.Fatalf("expected exactly one default layer child, got %d", len(root.children))
	}
	layer := w.Node(root.children[0])
	if layer.kind != KindLayer {
		t.Fatalf("expected Layer, got %s", layer.kind)
	}
	if layer.layer.SortIndex != DefaultLayerSortIndex {
		t.Errorf("default layer should use the reserved sort sentinel")
	}
	if layer.linkID == "" {
		t.Errorf("default layer should have a non-empty link id")
	}
	if w.DefaultLayer() != layer.id {
		t.Errorf("RootData.DefaultLayer should match the bootstrapped layer")
	}
}

func TestContainmentInvariants(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()

	group := w.newNode(KindGroup, layer)
	if err := w.checkContainment(layer, group.id); err != nil {
		t.Errorf("layer should be able to hold a group: %v", err)
	}

	badLayer := w.newNode(KindLayer, group.id)
	if err := w.checkContainment(group.id, badLayer.id); err == nil {
		t.Errorf("expected error placing a Layer under a Group")
	}

	brush := w.newNode(KindBrush, layer)
	if err := w.checkContainment(layer, brush.id); err != nil {
		t.Errorf("layer should be able to hold a brush: %v", err)
	}
}

func TestBoundsInvalidationPropagatesToAncestors(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	group := w.newNode(KindGroup, layer)
	w.attachChild(layer, group.id)

	brush := w.newNode(KindBrush, group.id)
	brush.brush = &BrushData{}
	w.attachChild(group.id, brush.id)

	_ = w.LogicalBounds(w.root) // populate the cache up the chain.
	if w.node(w.root).bounds.logical == nil {
		t.Fatalf("expected root bounds cache to be populated")
	}

	w.invalidateBounds(brush.id)
	if w.node(w.root).bounds.logical != nil {
		t.Errorf("expected invalidateBounds to clear the root's cache too")
	}
}

func TestEntityOriginBounds(t *testing.T) {
	w := newTestWorld()
	layer := w.DefaultLayer()
	e := w.newNode(KindEntity, layer)
	e.entity = &EntityData{Definition: &EntityDefinition{
		Classname:     "light",
		DefaultBounds: testBounds(-8, -8, -8, 8, 8, 8),
	}}
	e.entity.Set("origin", "64 0 -16")
	w.attachChild(layer, e.id)

	b := w.ModelBounds(e.id)
	if b.Min.X != 56 || b.Max.X != 72 {
		t.Errorf("expected origin-shifted bounds, got %+v", b)
	}
}
