package mapkit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brushforge/mapkit/geom"
)

// WriteMap serializes w to the id-tech `.map` text form (spec §4.J,
// §6.1): a two-line `// Game: <name>` / `// Format: <format>` header
// (grounded on the persisted header convention), then every node in
// tree order as an entity block. Layers and Groups are emitted as their
// own bookkeeping entities (`_tb_type=_tb_layer`/`_tb_group`) ahead of
// the ordinary entities that reference them.
func WriteMap(w *World, gameName string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// Game: %s\n", gameName)
	fmt.Fprintf(&sb, "// Format: %s\n", w.RootData().Format.String())

	wr := &writer{w: w, sb: &sb}
	root := w.node(w.root)
	for _, layerID := range root.children {
		wr.writeLayer(layerID)
	}
	return []byte(sb.String())
}

type writer struct {
	w  *World
	sb *strings.Builder
}

func (wr *writer) writeLayer(id NodeID) {
	n := wr.w.node(id)
	isDefault := id == wr.w.DefaultLayer()
	if !isDefault {
		wr.writeLayerBookkeeping(n)
	}
	parentKey, parentID := tbTypeLayerMarker, n.persistentID
	if isDefault {
		parentKey, parentID = "", nil
	}
	for _, child := range n.children {
		wr.writeSceneNode(child, parentKey, parentID)
	}
}

func (wr *writer) writeLayerBookkeeping(n *Node) {
	props := []property{
		{"classname", "func_group"},
		{propTbType, tbTypeLayerMarker},
		{propTbID, strconv.FormatUint(*n.persistentID, 10)},
		{propTbName, n.layer.Name},
		{propTbLayerSortIndex, strconv.FormatInt(int64(n.layer.SortIndex), 10)},
	}
	if n.layer.Color != nil {
		c := n.layer.Color
		props = append(props, property{propTbLayerColor, formatFloats(c[0], c[1], c[2])})
	}
	if n.layer.OmitFromExport {
		props = append(props, property{propTbLayerOmitFromExport, "1"})
	}
	if n.lock == HiddenOrLocked {
		props = append(props, property{propTbLayerLocked, "1"})
	}
	if n.visibility == HiddenOrLocked {
		props = append(props, property{propTbLayerHidden, "1"})
	}
	wr.writeEntityHeader(props)
	wr.sb.WriteString("}\n")
}

// writeSceneNode writes group, entity, brush, and patch nodes in tree
// order. parentKey/parentID name the bookkeeping reference (`_tb_layer`
// or `_tb_group`) a Group or Entity child must carry to round-trip its
// container.
func (wr *writer) writeSceneNode(id NodeID, parentKey string, parentID *uint64) {
	n := wr.w.node(id)
	switch n.kind {
	case KindGroup:
		wr.writeGroupBookkeeping(n, parentKey, parentID)
		for _, child := range n.children {
			wr.writeSceneNode(child, tbTypeGroupMarker, n.persistentID)
		}
	case KindEntity:
		wr.writeEntity(n, parentKey, parentID)
	}
}

func (wr *writer) writeGroupBookkeeping(n *Node, parentKey string, parentID *uint64) {
	props := []property{
		{"classname", "func_group"},
		{propTbType, tbTypeGroupMarker},
		{propTbID, strconv.FormatUint(*n.persistentID, 10)},
		{propTbName, n.group.Name},
	}
	if parentKey != "" && parentID != nil {
		props = append(props, property{parentKey, strconv.FormatUint(*parentID, 10)})
	}
	if n.group.Transform != nil {
		props = append(props, property{propTbTransformation, formatRowMajor16(n.group.Transform)})
	}
	if n.linkID != "" && wr.w.linkFamilySize(n.linkID) > 1 {
		props = append(props, property{propTbLinkedGroupID, n.linkID})
	}
	wr.writeEntityHeader(props)
	wr.sb.WriteString("}\n")
}

func (wr *writer) writeEntity(n *Node, parentKey string, parentID *uint64) {
	props := n.entity.Properties()
	if parentKey != "" && parentID != nil {
		props = append(props, property{parentKey, strconv.FormatUint(*parentID, 10)})
	}
	if len(n.entity.ProtectedProperties) > 0 {
		props = append(props, property{propTbProtectedProperties, formatProtectedProperties(n.entity.ProtectedProperties)})
	}
	wr.writeEntityHeader(props)
	for _, child := range n.children {
		c := wr.w.node(child)
		switch c.kind {
		case KindBrush:
			wr.writeBrush(c.brush)
		case KindPatch:
			wr.writePatch(c.patch)
		}
	}
	wr.sb.WriteString("}\n")
}

func (wr *writer) writeEntityHeader(props []property) {
	wr.sb.WriteString("{\n")
	for _, p := range props {
		fmt.Fprintf(wr.sb, "%s %s\n", quoteString(p.Key), quoteString(p.Value))
	}
}

func (wr *writer) writeBrush(b *BrushData) {
	wr.sb.WriteString("{\n")
	for _, f := range b.Faces {
		wr.writeFace(f)
	}
	wr.sb.WriteString("}\n")
}

func (wr *writer) writeFace(f Face) {
	fmt.Fprintf(wr.sb, "( %s ) ( %s ) ( %s ) %s ",
		formatPoint(f.P0), formatPoint(f.P1), formatPoint(f.P2), materialToken(f.Attrs.Material))

	if f.Attrs.UAxis != nil && f.Attrs.VAxis != nil {
		fmt.Fprintf(wr.sb, "[ %s %s ] [ %s %s ] ",
			formatPoint(*f.Attrs.UAxis), formatFloat(f.Attrs.XOffset),
			formatPoint(*f.Attrs.VAxis), formatFloat(f.Attrs.YOffset))
	} else {
		fmt.Fprintf(wr.sb, "%s %s ", formatFloat(f.Attrs.XOffset), formatFloat(f.Attrs.YOffset))
	}
	fmt.Fprintf(wr.sb, "%s %s %s", formatFloat(f.Attrs.Rotation), formatFloat(f.Attrs.XScale), formatFloat(f.Attrs.YScale))

	if f.Attrs.Contents != nil && f.Attrs.Flags != nil && f.Attrs.Value != nil {
		fmt.Fprintf(wr.sb, " %d %d %d", *f.Attrs.Contents, *f.Attrs.Flags, *f.Attrs.Value)
		if f.Attrs.Color != nil {
			c := f.Attrs.Color
			fmt.Fprintf(wr.sb, " %d %d %d", c[0], c[1], c[2])
		}
	}
	wr.sb.WriteString("\n")
}

func (wr *writer) writePatch(p *PatchData) {
	wr.sb.WriteString("{\npatchDef2\n{\n")
	fmt.Fprintf(wr.sb, "%s\n", materialToken(p.Material))
	fmt.Fprintf(wr.sb, "( %d %d 0 0 0 )\n(\n", p.Rows, p.Cols)
	for r := 0; r < p.Rows; r++ {
		wr.sb.WriteString("(")
		for c := 0; c < p.Cols; c++ {
			pt := p.At(r, c)
			fmt.Fprintf(wr.sb, " ( %s %s %s )", formatPoint(pt.Pos), formatFloat(pt.U), formatFloat(pt.V))
		}
		wr.sb.WriteString(" )\n")
	}
	wr.sb.WriteString(")\n}\n}\n")
}

func materialToken(name string) string {
	if name == "" {
		return "__TB_empty"
	}
	return name
}

func quoteString(s string) string {
	return `"` + s + `"`
}

func formatPoint(v geom.Vec3) string { return formatFloats(v.X, v.Y, v.Z) }

func formatFloats(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}

func formatRowMajor16(m *geom.Mat4) string {
	vs := m.RowMajor()
	parts := make([]string, 16)
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}

// formatProtectedProperties joins keys with `;`, escaping any literal
// `;` in a key as `\;` (spec §6.3).
func formatProtectedProperties(keys map[string]bool) string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sortStrings(names)
	for i, k := range names {
		names[i] = strings.ReplaceAll(k, ";", `\;`)
	}
	return strings.Join(names, ";")
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1] > s[j] {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}
