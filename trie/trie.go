// Package trie provides a compact prefix trie mapping string keys to a
// set of reference-counted values. It backs the editor core's
// string/property index (spec §4.C): entity property keys/values,
// group names, and face material names all share one of these, keyed
// by the indexed string and valued by the node that produced it.
//
// No pack repo vendors a string-keyed trie as a real dependency (the
// one trie-shaped example in the retrieved pack,
// github.com/gaissmai/bart, is a fixed-stride IP/CIDR routing table and
// is not a dependency of any example repo's go.mod — adopting it would
// mean fabricating an unused dependency), so this is implemented
// directly against the standard library.
package trie

import "sort"

// Trie maps strings to a reference-counted set of comparable values.
// The zero value is ready to use.
type Trie[V comparable] struct {
	root node[V]
}

type node[V comparable] struct {
	children map[byte]*node[V]
	// refs counts how many times each value was Added at this exact key.
	refs map[V]int
}

func newNode[V comparable]() *node[V] {
	return &node[V]{children: map[byte]*node[V]{}, refs: map[V]int{}}
}

// Add registers value under key, incrementing its reference count if
// already present (spec §4.C: "Add/remove are idempotent for duplicate
// insertions... reference-counted per (key, node) pair").
func (t *Trie[V]) Add(key string, value V) {
	n := &t.root
	if n.children == nil {
		*n = *newNode[V]()
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		child, ok := n.children[b]
		if !ok {
			child = newNode[V]()
			n.children[b] = child
		}
		n = child
	}
	n.refs[value]++
}

// Remove decrements value's reference count under key, removing the
// entry entirely once it reaches zero. Removing a value not present is
// a no-op.
func (t *Trie[V]) Remove(key string, value V) {
	n := &t.root
	if n.children == nil {
		return
	}
	for i := 0; i < len(key); i++ {
		child, ok := n.children[key[i]]
		if !ok {
			return
		}
		n = child
	}
	if n.refs[value] <= 1 {
		delete(n.refs, value)
	} else {
		n.refs[value]--
	}
}

// Clear discards every entry.
func (t *Trie[V]) Clear() { t.root = node[V]{} }

// Find returns the deduplicated set of values registered for an exact
// key match, in no particular order.
func (t *Trie[V]) Find(key string) []V {
	n := t.walk(key)
	if n == nil {
		return nil
	}
	return valuesOf(n.refs)
}

// FindPrefix returns the deduplicated set of values registered under
// any key starting with prefix (spec §4.C: a pattern is "a literal or a
// shell-style prefix ending in *").
func (t *Trie[V]) FindPrefix(prefix string) []V {
	n := t.walk(prefix)
	if n == nil {
		return nil
	}
	seen := map[V]bool{}
	collect(n, seen)
	out := make([]V, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	return out
}

// Query resolves pattern per spec §4.C: a literal exact match, or a
// prefix query when pattern ends in '*'.
func (t *Trie[V]) Query(pattern string) []V {
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		return t.FindPrefix(pattern[:len(pattern)-1])
	}
	return t.Find(pattern)
}

func (t *Trie[V]) walk(key string) *node[V] {
	n := &t.root
	if n.children == nil {
		return nil
	}
	for i := 0; i < len(key); i++ {
		child, ok := n.children[key[i]]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func collect[V comparable](n *node[V], out map[V]bool) {
	for v := range n.refs {
		out[v] = true
	}
	for _, c := range n.children {
		collect(c, out)
	}
}

func valuesOf[V comparable](refs map[V]int) []V {
	out := make([]V, 0, len(refs))
	for v := range refs {
		out = append(out, v)
	}
	return out
}

// SortByString sorts vs using key as the ordering projection, used by
// callers (spec §4.C: "Results are sorted and deduplicated").
func SortByString[V any](vs []V, key func(V) string) {
	sort.Slice(vs, func(i, j int) bool { return key(vs[i]) < key(vs[j]) })
}
