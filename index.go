package mapkit

import "github.com/brushforge/mapkit/trie"

// PropertyIndex is the compact trie over entity properties, material
// names and group names described in spec §4.C. It is kept current by
// the command engine as nodes are created, mutated and removed.
type PropertyIndex struct {
	t *trie.Trie[NodeID]
	// indexed remembers exactly which keys were registered for each
	// node, so removeNode can precisely undo addNode regardless of how
	// many (possibly-changed) properties the node has now.
	indexed map[NodeID][]string
}

func newPropertyIndex() *PropertyIndex {
	return &PropertyIndex{t: &trie.Trie[NodeID]{}, indexed: map[NodeID][]string{}}
}

// keysFor returns the set of trie keys node n contributes, per the
// per-variant rule in spec §4.C.
func keysFor(n *Node) []string {
	switch n.kind {
	case KindWorld, KindEntity:
		var data *EntityData
		if n.kind == KindEntity {
			data = n.entity
		}
		var keys []string
		if data != nil {
			for _, p := range data.props {
				keys = append(keys, p.Key, p.Value)
			}
		}
		return keys
	case KindGroup:
		if n.group.Name != "" {
			return []string{n.group.Name}
		}
		return nil
	case KindBrush:
		var keys []string
		for _, f := range n.brush.Faces {
			keys = append(keys, f.Attrs.Material)
		}
		return keys
	case KindPatch:
		if n.patch.Material != "" {
			return []string{n.patch.Material}
		}
		return nil
	default: // Layer indexes nothing.
		return nil
	}
}

// addNode registers id's current keys. Safe to call repeatedly; each
// call adds a reference, matching the trie's idempotent-duplicate rule.
func (idx *PropertyIndex) addNode(w *World, id NodeID) {
	n := w.Node(id)
	if n == nil {
		return
	}
	keys := keysFor(n)
	for _, k := range keys {
		idx.t.Add(k, id)
	}
	idx.indexed[id] = append(idx.indexed[id], keys...)
}

// removeNode unregisters every key previously added for id via addNode.
func (idx *PropertyIndex) removeNode(w *World, id NodeID) {
	for _, k := range idx.indexed[id] {
		idx.t.Remove(k, id)
	}
	delete(idx.indexed, id)
}

// reindex re-derives id's keys from scratch, used after a property,
// material, or name mutation.
func (idx *PropertyIndex) reindex(w *World, id NodeID) {
	idx.removeNode(w, id)
	idx.addNode(w, id)
}

// Clear discards every indexed entry.
func (idx *PropertyIndex) Clear() {
	idx.t.Clear()
	idx.indexed = map[NodeID][]string{}
}

// FindNodes resolves pattern (a literal, or a shell-style prefix ending
// in '*') against the index, returning the matching node ids sorted and
// deduplicated. If kind is non-nil, only nodes of that Kind are returned.
func (w *World) FindNodes(pattern string, kind *Kind) []NodeID {
	ids := w.index.t.Query(pattern)
	out := ids[:0:0]
	for _, id := range ids {
		if !w.ids.valid(id) {
			continue
		}
		if kind != nil && w.node(id).kind != *kind {
			continue
		}
		out = append(out, id)
	}
	trie.SortByString(out, func(id NodeID) string { return nodeSortKey(w, id) })
	return out
}

func nodeSortKey(w *World, id NodeID) string {
	n := w.Node(id)
	if n == nil {
		return ""
	}
	switch n.kind {
	case KindEntity:
		return n.entity.Classname()
	case KindGroup:
		return n.group.Name
	default:
		return n.kind.String()
	}
}
