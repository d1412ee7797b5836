package mapkit

import (
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/brushforge/mapkit/geom"
)

// ReadMapHeader reconstructs the game name and map format from the
// first two comment lines a writer emits (spec §4.J): `// Game: <name>`
// and `// Format: <name>`. Either or both missing yields "" / Unknown.
func ReadMapHeader(data []byte) (game string, format MapFormat) {
	lines := strings.SplitN(string(data), "\n", 3)
	for i := 0; i < 2 && i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		switch {
		case strings.HasPrefix(line, "// Game: "):
			game = strings.TrimPrefix(line, "// Game: ")
		case strings.HasPrefix(line, "// Format: "):
			format = formatFromName(strings.TrimPrefix(line, "// Format: "))
		}
	}
	return game, format
}

// formatFromName inverts MapFormat.String(); an unrecognized name
// (including "Unknown") yields FormatUnknown.
func formatFromName(name string) MapFormat {
	for f := FormatStandard; f <= FormatHexen2; f++ {
		if f.String() == name {
			return f
		}
	}
	return FormatUnknown
}

// --- Tokenizer -------------------------------------------------------------

type tokenizer struct {
	data []byte
	pos  int
	line int
}

func newTokenizer(data []byte) *tokenizer { return &tokenizer{data: data, line: 1} }

func (t *tokenizer) atEnd() bool { return t.pos >= len(t.data) }

func (t *tokenizer) advance() byte {
	b := t.data[t.pos]
	t.pos++
	if b == '\n' {
		t.line++
	}
	return b
}

// skipSpace consumes whitespace and `//` line comments.
func (t *tokenizer) skipSpace() {
	for !t.atEnd() {
		b := t.data[t.pos]
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			t.advance()
			continue
		}
		if b == '/' && t.pos+1 < len(t.data) && t.data[t.pos+1] == '/' {
			for !t.atEnd() && t.data[t.pos] != '\n' {
				t.advance()
			}
			continue
		}
		break
	}
}

func (t *tokenizer) peekByte() (byte, bool) {
	t.skipSpace()
	if t.atEnd() {
		return 0, false
	}
	return t.data[t.pos], true
}

func (t *tokenizer) expect(b byte) error {
	got, ok := t.peekByte()
	if !ok || got != b {
		return parseErr(t.line, "expected %q, got %q", b, got)
	}
	t.advance()
	return nil
}

// readBareToken reads a run of non-whitespace bytes; structural bytes
// such as parentheses and braces do not end the token.
func (t *tokenizer) readBareToken() string {
	t.skipSpace()
	start := t.pos
	for !t.atEnd() {
		b := t.data[t.pos]
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			break
		}
		t.advance()
	}
	return string(t.data[start:t.pos])
}

// readQuoted reads a "..." string, leaving `\"` inside it untouched
// (the reader does not process escape sequences, spec §4.J): a
// backslash immediately before a quote does not terminate the string,
// but is copied through verbatim along with the quote.
func (t *tokenizer) readQuoted() (string, error) {
	if err := t.expect('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		if t.atEnd() {
			return "", parseErr(t.line, "unterminated quoted string")
		}
		b := t.data[t.pos]
		if b == '\\' && t.pos+1 < len(t.data) {
			sb.WriteByte(b)
			sb.WriteByte(t.data[t.pos+1])
			t.pos += 2
			continue
		}
		if b == '"' {
			t.advance()
			return sb.String(), nil
		}
		sb.WriteByte(b)
		t.advance()
	}
}

// readMaterial reads a face's material name: a quoted name has its \\
// and \" escapes replaced by \ and ", unquoted ends at the first whitespace, with a leading `{`
// allowed for transparent decal materials (spec §4.J). __TB_empty is
// replaced by the empty-name constant.
func (t *tokenizer) readMaterial() (string, error) {
	b, ok := t.peekByte()
	if !ok {
		return "", parseErr(t.line, "expected a material name")
	}
	var name string
	var err error
	if b == '"' {
		name, err = t.readQuoted()
		name = strings.NewReplacer(`\\`, `\`, `\"`, `"`).Replace(name)
	} else {
		name = t.readBareToken()
	}
	if name == "__TB_empty" {
		name = ""
	}
	return name, err
}

func (t *tokenizer) readFloat() (float64, error) {
	tok := t.readBareToken()
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, parseErr(t.line, "expected a number, got %q", tok)
	}
	return f, nil
}

// tryReadInt consumes and returns the next bare token as an int only if
// it parses as one and the upcoming byte isn't a structural delimiter;
// it leaves the cursor untouched otherwise.
func (t *tokenizer) tryReadInt() (int64, bool) {
	save, saveLine := t.pos, t.line
	t.skipSpace()
	if b, ok := t.peekByte(); !ok || b == '(' || b == ')' || b == '{' || b == '}' {
		t.pos, t.line = save, saveLine
		return 0, false
	}
	tok := t.readBareToken()
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		t.pos, t.line = save, saveLine
		return 0, false
	}
	return n, true
}

func (t *tokenizer) readVec3() (geom.Vec3, error) {
	x, err := t.readFloat()
	if err != nil {
		return geom.Vec3{}, err
	}
	y, err := t.readFloat()
	if err != nil {
		return geom.Vec3{}, err
	}
	z, err := t.readFloat()
	if err != nil {
		return geom.Vec3{}, err
	}
	return geom.Vec3{X: x, Y: y, Z: z}, nil
}

func (t *tokenizer) readPoint() (geom.Vec3, error) {
	if err := t.expect('('); err != nil {
		return geom.Vec3{}, err
	}
	v, err := t.readVec3()
	if err != nil {
		return geom.Vec3{}, err
	}
	if err := t.expect(')'); err != nil {
		return geom.Vec3{}, err
	}
	return v, nil
}

// --- Face parsing ------------------------------------------------------

func (t *tokenizer) readFace(format MapFormat) (Face, error) {
	p0, err := t.readPoint()
	if err != nil {
		return Face{}, err
	}
	p1, err := t.readPoint()
	if err != nil {
		return Face{}, err
	}
	p2, err := t.readPoint()
	if err != nil {
		return Face{}, err
	}
	material, err := t.readMaterial()
	if err != nil {
		return Face{}, err
	}
	attrs := FaceAttributes{Material: material}

	if b, ok := t.peekByte(); ok && b == '[' {
		uAxis, uOff, err := t.readAxisBracket()
		if err != nil {
			return Face{}, err
		}
		vAxis, vOff, err := t.readAxisBracket()
		if err != nil {
			return Face{}, err
		}
		attrs.UAxis, attrs.VAxis = &uAxis, &vAxis
		attrs.XOffset, attrs.YOffset = uOff, vOff
	} else {
		if format == FormatValve220 {
			return Face{}, parseErr(t.line, "expected a Valve220 face with bracketed UV axes")
		}
		attrs.XOffset, err = t.readFloat()
		if err != nil {
			return Face{}, err
		}
		attrs.YOffset, err = t.readFloat()
		if err != nil {
			return Face{}, err
		}
	}

	attrs.Rotation, err = t.readFloat()
	if err != nil {
		return Face{}, err
	}
	attrs.XScale, err = t.readFloat()
	if err != nil {
		return Face{}, err
	}
	attrs.YScale, err = t.readFloat()
	if err != nil {
		return Face{}, err
	}

	var ints []int64
	for len(ints) < 6 {
		n, ok := t.tryReadInt()
		if !ok {
			break
		}
		ints = append(ints, n)
	}
	if len(ints) >= 3 {
		c, f, v := int32(ints[0]), int32(ints[1]), int32(ints[2])
		attrs.Contents, attrs.Flags, attrs.Value = &c, &f, &v
	}
	if len(ints) >= 6 {
		color := [3]uint8{uint8(ints[3]), uint8(ints[4]), uint8(ints[5])}
		attrs.Color = &color
	}

	return Face{P0: p0, P1: p1, P2: p2, Attrs: attrs}, nil
}

// readAxisBracket reads Valve220's `[ x y z offset ]` UV axis form.
func (t *tokenizer) readAxisBracket() (geom.Vec3, float64, error) {
	if err := t.expect('['); err != nil {
		return geom.Vec3{}, 0, err
	}
	v, err := t.readVec3()
	if err != nil {
		return geom.Vec3{}, 0, err
	}
	off, err := t.readFloat()
	if err != nil {
		return geom.Vec3{}, 0, err
	}
	if err := t.expect(']'); err != nil {
		return geom.Vec3{}, 0, err
	}
	return v, off, nil
}

// --- Brush / patch block parsing ----------------------------------------

func (t *tokenizer) readBrush(format MapFormat) (BrushData, FilePos, error) {
	startLine := t.line
	if err := t.expect('{'); err != nil {
		return BrushData{}, FilePos{}, err
	}
	inner := false
	if b, ok := t.peekByte(); ok && b != '(' {
		kw := t.readBareToken()
		if kw == "brushDef" || kw == "brushDef3" {
			inner = true
			if err := t.expect('{'); err != nil {
				return BrushData{}, FilePos{}, err
			}
		}
	}
	var faces []Face
	for {
		b, ok := t.peekByte()
		if !ok {
			return BrushData{}, FilePos{}, parseErr(t.line, "unterminated brush")
		}
		if b == '}' {
			break
		}
		f, err := t.readFace(format)
		if err != nil {
			return BrushData{}, FilePos{}, err
		}
		faces = append(faces, f)
	}
	if inner {
		if err := t.expect('}'); err != nil {
			return BrushData{}, FilePos{}, err
		}
	}
	if err := t.expect('}'); err != nil {
		return BrushData{}, FilePos{}, err
	}
	return BrushData{Faces: faces}, FilePos{FirstLine: startLine, LineCount: t.line - startLine + 1}, nil
}

func (t *tokenizer) readPatch() (PatchData, FilePos, error) {
	startLine := t.line
	if err := t.expect('{'); err != nil {
		return PatchData{}, FilePos{}, err
	}
	kw := t.readBareToken()
	if kw != "patchDef2" && kw != "patchDef3" {
		return PatchData{}, FilePos{}, parseErr(t.line, "expected patchDef2, got %q", kw)
	}
	if err := t.expect('{'); err != nil {
		return PatchData{}, FilePos{}, err
	}
	material, err := t.readMaterial()
	if err != nil {
		return PatchData{}, FilePos{}, err
	}
	if err := t.expect('('); err != nil {
		return PatchData{}, FilePos{}, err
	}
	rows, err := t.readFloat()
	if err != nil {
		return PatchData{}, FilePos{}, err
	}
	cols, err := t.readFloat()
	if err != nil {
		return PatchData{}, FilePos{}, err
	}
	for {
		if _, ok := t.tryReadInt(); !ok {
			break
		}
	}
	if err := t.expect(')'); err != nil {
		return PatchData{}, FilePos{}, err
	}

	nRows, nCols := int(rows), int(cols)
	grid := make([]PatchPoint, 0, nRows*nCols)
	if err := t.expect('('); err != nil {
		return PatchData{}, FilePos{}, err
	}
	for r := 0; r < nRows; r++ {
		if err := t.expect('('); err != nil {
			return PatchData{}, FilePos{}, err
		}
		for c := 0; c < nCols; c++ {
			if err := t.expect('('); err != nil {
				return PatchData{}, FilePos{}, err
			}
			pos, err := t.readVec3()
			if err != nil {
				return PatchData{}, FilePos{}, err
			}
			u, err := t.readFloat()
			if err != nil {
				return PatchData{}, FilePos{}, err
			}
			v, err := t.readFloat()
			if err != nil {
				return PatchData{}, FilePos{}, err
			}
			if err := t.expect(')'); err != nil {
				return PatchData{}, FilePos{}, err
			}
			grid = append(grid, PatchPoint{Pos: pos, U: u, V: v})
		}
		if err := t.expect(')'); err != nil {
			return PatchData{}, FilePos{}, err
		}
	}
	if err := t.expect(')'); err != nil {
		return PatchData{}, FilePos{}, err
	}
	if err := t.expect('}'); err != nil {
		return PatchData{}, FilePos{}, err
	}
	if err := t.expect('}'); err != nil {
		return PatchData{}, FilePos{}, err
	}
	return PatchData{Rows: nRows, Cols: nCols, Grid: grid, Material: material},
		FilePos{FirstLine: startLine, LineCount: t.line - startLine + 1}, nil
}

// --- Entity block parsing -----------------------------------------------

type parsedBrush struct {
	data BrushData
	pos  FilePos
}

type parsedPatch struct {
	data PatchData
	pos  FilePos
}

type parsedEntity struct {
	props   []property
	brushes []parsedBrush
	patches []parsedPatch
	pos     FilePos
}

func setProp(props []property, key, value string) []property {
	for i := range props {
		if props[i].Key == key {
			return props
		}
	}
	return append(props, property{Key: key, Value: value})
}

func (t *tokenizer) readEntity(format MapFormat) (parsedEntity, error) {
	startLine := t.line
	if err := t.expect('{'); err != nil {
		return parsedEntity{}, err
	}
	var pe parsedEntity
	for {
		b, ok := t.peekByte()
		if !ok {
			return parsedEntity{}, parseErr(t.line, "unterminated entity")
		}
		switch b {
		case '}':
			t.advance()
			pe.pos = FilePos{FirstLine: startLine, LineCount: t.line - startLine + 1}
			return pe, nil
		case '"':
			key, err := t.readQuoted()
			if err != nil {
				return parsedEntity{}, err
			}
			value, err := t.readQuoted()
			if err != nil {
				return parsedEntity{}, err
			}
			pe.props = setProp(pe.props, key, value) // first duplicate key wins (spec §4.J).
		case '{':
			if t.peekPatchAhead() {
				pd, pos, err := t.readPatch()
				if err != nil {
					return parsedEntity{}, err
				}
				pe.patches = append(pe.patches, parsedPatch{data: pd, pos: pos})
			} else {
				bd, pos, err := t.readBrush(format)
				if err != nil {
					return parsedEntity{}, err
				}
				pe.brushes = append(pe.brushes, parsedBrush{data: bd, pos: pos})
			}
		default:
			return parsedEntity{}, parseErr(t.line, "unexpected byte %q in entity", b)
		}
	}
}

// peekPatchAhead looks past the brush/patch block's opening `{` for the
// patchDef2/patchDef3 keyword without consuming anything.
func (t *tokenizer) peekPatchAhead() bool {
	save, saveLine := t.pos, t.line
	defer func() { t.pos, t.line = save, saveLine }()
	t.advance() // '{'
	kw := t.readBareToken()
	return kw == "patchDef2" || kw == "patchDef3"
}

// --- Top-level reader -----------------------------------------------------

// ReadMap parses a complete .map byte stream into a World (spec §4.J).
// format should be the caller's best-known format, or FormatUnknown to
// let the reader disambiguate from the first brush face it finds; an
// empty or all-point-entity map defaults to defaultFormat.
func ReadMap(data []byte, format MapFormat, defaultFormat MapFormat, cfg EntityPropertyConfig, defs map[string]*EntityDefinition) (*World, error) {
	blocks, err := splitEntityBlocks(data)
	if err != nil {
		return nil, err
	}

	resolved := format
	if resolved == FormatUnknown {
		resolved = detectFormat(data, defaultFormat)
	}

	parsed := make([]parsedEntity, len(blocks))
	if len(blocks) > 0 {
		var g errgroup.Group
		for i, b := range blocks {
			i, b := i, b
			g.Go(func() error {
				tk := &tokenizer{data: b.data, line: b.startLine}
				pe, err := tk.readEntity(resolved)
				if err != nil {
					return err
				}
				parsed[i] = pe
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	w := NewWorld(resolved, cfg)
	if err := assembleWorld(w, parsed, defs); err != nil {
		return nil, err
	}
	return w, nil
}

// --- World assembly ---------------------------------------------------
//
// TrenchBroom's save format has no dedicated grammar for Layer/Group: it
// persists them as ordinary entities carrying a `_tb_type` bookkeeping
// property (spec §4.J, §6.3). `_tb_layer`/`_tb_group` double as that
// marker's value and, on any other entity, as the property naming which
// Layer or Group (by `_tb_id`) the entity belongs to.
const (
	propTbType                = "_tb_type"
	tbTypeLayerMarker         = "_tb_layer"
	tbTypeGroupMarker         = "_tb_group"
	propTbID                  = "_tb_id"
	propTbName                = "_tb_name"
	propTbLayerSortIndex      = "_tb_layer_sort_index"
	propTbLayerColor          = "_tb_layer_color"
	propTbLayerLocked         = "_tb_layer_locked"
	propTbLayerHidden         = "_tb_layer_hidden"
	propTbLayerOmitFromExport = "_tb_layer_omit_from_export"
	propTbLinkedGroupID       = "_tb_linked_group_id"
	propTbTransformation      = "_tb_transformation"
	propTbProtectedProperties = "_tb_protected_properties"
)

func propValue(props []property, key string) string {
	for _, p := range props {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// bumpPersistentID keeps future allocPersistentID calls collision-free
// against ids recovered from the file.
func (w *World) bumpPersistentID(seen uint64) {
	if seen >= w.nextPersistentID {
		w.nextPersistentID = seen + 1
	}
}

func parseRowMajor16(s string) (*geom.Mat4, bool) {
	fields := strings.Fields(s)
	if len(fields) != 16 {
		return nil, false
	}
	var v [16]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		v[i] = n
	}
	return geom.FromRowMajor(v), true
}

// assembleWorld turns the parsed entity blocks into a populated World:
// bookkeeping entities become Layer/Group nodes, everything else becomes
// an ordinary Entity (with its nested brushes/patches) attached to the
// Layer or Group its `_tb_layer`/`_tb_group` property names, or to the
// default layer when neither is present.
func assembleWorld(w *World, parsed []parsedEntity, defs map[string]*EntityDefinition) error {
	byTbID := map[uint64]NodeID{}
	type pending struct {
		id        NodeID
		parentKey string // "", tbTypeLayerMarker or tbTypeGroupMarker
		parentRef uint64
	}
	var groups []pending
	var ordinary []parsedEntity

	for _, pe := range parsed {
		switch propValue(pe.props, propTbType) {
		case tbTypeLayerMarker:
			id, tbID := w.assembleBookkeepingLayer(pe)
			byTbID[tbID] = id
		case tbTypeGroupMarker:
			id, tbID, parentKey, parentRef := w.assembleBookkeepingGroup(pe)
			byTbID[tbID] = id
			groups = append(groups, pending{id: id, parentKey: parentKey, parentRef: parentRef})
		default:
			ordinary = append(ordinary, pe)
		}
	}

	for _, g := range groups {
		parent := resolveParent(w, byTbID, g.parentKey, g.parentRef)
		w.attachChild(parent, g.id)
		w.index.addNode(w, g.id)
	}

	w.normalizeLayerOrder()

	for _, pe := range ordinary {
		if err := w.assembleOrdinaryEntity(pe, byTbID, defs); err != nil {
			return err
		}
	}

	if err := w.initializeLinkIds([]NodeID{w.root}); err != nil {
		return err
	}
	return nil
}

func resolveParent(w *World, byTbID map[uint64]NodeID, key string, ref uint64) NodeID {
	if key != "" {
		if id, ok := byTbID[ref]; ok {
			return id
		}
	}
	return w.DefaultLayer()
}

// assembleBookkeepingLayer materializes (or, for the reserved default
// sort index, updates in place) a Layer node from a `_tb_type=_tb_layer`
// entity, returning its node id and recovered `_tb_id`.
func (w *World) assembleBookkeepingLayer(pe parsedEntity) (NodeID, uint64) {
	tbID, _ := strconv.ParseUint(propValue(pe.props, propTbID), 10, 64)
	w.bumpPersistentID(tbID)
	name := propValue(pe.props, propTbName)

	sortIdx := DefaultLayerSortIndex
	if v := propValue(pe.props, propTbLayerSortIndex); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			sortIdx = int32(n)
		}
	}

	var n *Node
	if sortIdx == DefaultLayerSortIndex {
		n = w.Node(w.DefaultLayer())
		if name != "" {
			n.layer.Name = name
		}
	} else {
		n = w.newNode(KindLayer, InvalidNodeID)
		n.layer = &LayerData{Name: name, SortIndex: sortIdx}
		n.linkID = w.freshLinkID()
		w.setPersistentID(n, tbID)
		w.attachChild(w.root, n.id)
	}
	applyLayerFlags(n, pe.props)
	w.index.addNode(w, n.id)
	return n.id, tbID
}

func applyLayerFlags(n *Node, props []property) {
	if v := propValue(props, propTbLayerColor); v != "" {
		if fields := strings.Fields(v); len(fields) == 3 {
			var c [3]float64
			ok := true
			for i, f := range fields {
				val, err := strconv.ParseFloat(f, 64)
				if err != nil {
					ok = false
					break
				}
				c[i] = val
			}
			if ok {
				n.layer.Color = &c
			}
		}
	}
	n.layer.OmitFromExport = propValue(props, propTbLayerOmitFromExport) == "1"
	if propValue(props, propTbLayerLocked) == "1" {
		n.lock = HiddenOrLocked
	}
	if propValue(props, propTbLayerHidden) == "1" {
		n.visibility = HiddenOrLocked
	}
}

// assembleBookkeepingGroup materializes a Group node from a
// `_tb_type=_tb_group` entity, returning its node id, recovered
// `_tb_id`, and the key/ref naming its parent container.
func (w *World) assembleBookkeepingGroup(pe parsedEntity) (id NodeID, tbID uint64, parentKey string, parentRef uint64) {
	tbID, _ = parseUintProp(pe.props, propTbID)
	w.bumpPersistentID(tbID)

	n := w.newNode(KindGroup, InvalidNodeID)
	n.group = &GroupData{Name: propValue(pe.props, propTbName)}
	if v := propValue(pe.props, propTbTransformation); v != "" {
		if m, ok := parseRowMajor16(v); ok {
			n.group.Transform = m
		}
	}
	if v := propValue(pe.props, propTbLinkedGroupID); v != "" {
		n.linkID = v
	} else {
		n.linkID = w.freshLinkID()
	}
	w.setPersistentID(n, tbID)

	if ref, ok := parseUintProp(pe.props, tbTypeLayerMarker); ok {
		parentKey, parentRef = tbTypeLayerMarker, ref
	} else if ref, ok := parseUintProp(pe.props, tbTypeGroupMarker); ok {
		parentKey, parentRef = tbTypeGroupMarker, ref
	}
	return n.id, tbID, parentKey, parentRef
}

func parseUintProp(props []property, key string) (uint64, bool) {
	v := propValue(props, key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	return n, err == nil
}

// assembleOrdinaryEntity attaches pe as an Entity node, with its brushes
// and patches as children, to the Layer or Group its own
// `_tb_layer`/`_tb_group` property names (default layer if neither).
func (w *World) assembleOrdinaryEntity(pe parsedEntity, byTbID map[uint64]NodeID, defs map[string]*EntityDefinition) error {
	var parentKey string
	var parentRef uint64
	if ref, ok := parseUintProp(pe.props, tbTypeLayerMarker); ok {
		parentKey, parentRef = tbTypeLayerMarker, ref
	} else if ref, ok := parseUintProp(pe.props, tbTypeGroupMarker); ok {
		parentKey, parentRef = tbTypeGroupMarker, ref
	}
	parent := resolveParent(w, byTbID, parentKey, parentRef)

	ent := w.newNode(KindEntity, InvalidNodeID)
	data := &EntityData{}
	classname := ""
	for _, p := range pe.props {
		switch p.Key {
		case tbTypeLayerMarker, tbTypeGroupMarker, propTbProtectedProperties:
			continue
		}
		if p.Key == "classname" && classname != "" {
			continue // first classname wins (spec §4.J).
		}
		if p.Key == "classname" {
			classname = p.Value
		}
		data.Set(p.Key, p.Value)
	}
	if def, ok := defs[classname]; ok {
		data.Definition = def
	} else if len(pe.brushes) > 0 || len(pe.patches) > 0 {
		data.Definition = &EntityDefinition{Classname: classname, PointEntity: false}
	}
	if v := propValue(pe.props, propTbProtectedProperties); v != "" {
		data.ProtectedProperties = parseProtectedProperties(v)
	}
	ent.entity = data
	ent.filePos = pe.pos
	ent.linkID = w.freshLinkID()
	w.attachChild(parent, ent.id)
	w.index.addNode(w, ent.id)
	w.links.addEntityNode(w, ent.id)

	for _, pb := range pe.brushes {
		b := w.newNode(KindBrush, InvalidNodeID)
		b.brush = &BrushData{Faces: pb.data.Faces}
		b.filePos = pb.pos
		w.attachChild(ent.id, b.id)
		w.index.addNode(w, b.id)
		if err := w.ComputeMesh(b.id); err != nil {
			return err
		}
	}
	for _, pp := range pe.patches {
		p := w.newNode(KindPatch, InvalidNodeID)
		pd := pp.data
		p.patch = &pd
		p.filePos = pp.pos
		w.attachChild(ent.id, p.id)
		w.index.addNode(w, p.id)
	}
	return nil
}

// parseProtectedProperties splits a `_tb_protected_properties` value on
// unescaped `;` (spec §6.3: "`;` escaped as `\;`").
func parseProtectedProperties(v string) map[string]bool {
	out := map[string]bool{}
	var cur strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) && v[i+1] == ';' {
			cur.WriteByte(';')
			i++
			continue
		}
		if v[i] == ';' {
			if cur.Len() > 0 {
				out[cur.String()] = true
				cur.Reset()
			}
			continue
		}
		cur.WriteByte(v[i])
	}
	if cur.Len() > 0 {
		out[cur.String()] = true
	}
	return out
}

// normalizeLayerOrder reorders the world's custom layers (root.children
// after the default layer): layers with a unique, non-negative sort
// index come first in ascending order; duplicates and negatives keep
// their file order but move to the end (spec §4.J).
func (w *World) normalizeLayerOrder() {
	root := w.node(w.root)
	if len(root.children) <= 2 {
		return
	}
	def := root.children[0]
	custom := append([]NodeID(nil), root.children[1:]...)

	counts := map[int32]int{}
	for _, id := range custom {
		counts[w.node(id).layer.SortIndex]++
	}

	var normal, problem []NodeID
	for _, id := range custom {
		idx := w.node(id).layer.SortIndex
		if idx < 0 || counts[idx] > 1 {
			problem = append(problem, id)
		} else {
			normal = append(normal, id)
		}
	}
	sortLayersByIndex(w, normal)

	out := make([]NodeID, 0, len(root.children))
	out = append(out, def)
	out = append(out, normal...)
	out = append(out, problem...)
	root.children = out
}

func sortLayersByIndex(w *World, ids []NodeID) {
	for i := 1; i < len(ids); i++ {
		j := i
		for j > 0 && w.node(ids[j-1]).layer.SortIndex > w.node(ids[j]).layer.SortIndex {
			ids[j-1], ids[j] = ids[j], ids[j-1]
			j--
		}
	}
}

type entityBlock struct {
	data      []byte
	startLine int
}

// splitEntityBlocks scans top-level brace depth to carve data into one
// []byte slice per `{...}` entity block, each starting at its own line.
func splitEntityBlocks(data []byte) ([]entityBlock, error) {
	t := newTokenizer(data)
	var out []entityBlock
	for {
		b, ok := t.peekByte()
		if !ok {
			return out, nil
		}
		if b != '{' {
			return nil, parseErr(t.line, "expected '{' to start an entity, got %q", b)
		}
		start := t.pos
		startLine := t.line
		depth := 0
		for {
			if t.atEnd() {
				return nil, parseErr(t.line, "unterminated entity block")
			}
			c := t.data[t.pos]
			if c == '"' {
				if _, err := t.readQuoted(); err != nil {
					return nil, err
				}
				continue
			}
			if c == '/' && t.pos+1 < len(t.data) && t.data[t.pos+1] == '/' {
				t.skipSpace()
				continue
			}
			if c == '{' {
				depth++
			} else if c == '}' {
				depth--
			}
			t.advance()
			if depth == 0 {
				break
			}
		}
		out = append(out, entityBlock{data: data[start:t.pos], startLine: startLine})
	}
}

// detectFormat inspects the first brush face in data to disambiguate an
// Unknown format (spec §4.J): Valve220 faces have bracketed UV axes;
// Quake2 faces append three integers after the scale; Daikatana adds
// three more. A "mapversion" "220" property also forces Valve220. An
// empty or face-free map defaults to defaultFormat.
func detectFormat(data []byte, defaultFormat MapFormat) MapFormat {
	s := string(data)
	if strings.Contains(s, `"mapversion"`) && strings.Contains(s, `"220"`) {
		return FormatValve220
	}
	idx := strings.Index(s, "(")
	if idx < 0 {
		return defaultFormat
	}
	line := strings.SplitN(s[idx:], "\n", 2)[0]
	if strings.Contains(line, "[") {
		return FormatValve220
	}
	// After the third point: material, two offsets, rotation and two
	// scales, then any trailing integers.
	switch len(strings.Fields(line[strings.LastIndex(line, ")")+1:])) - 6 {
	case 3:
		return FormatQuake2
	case 6:
		return FormatDaikatana
	}
	return FormatStandard
}
