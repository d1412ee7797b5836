package mapkit

// LinkManager maintains the two directed multigraphs between entity
// nodes described in spec §4.D: source links (keyed by a logical bucket
// name, eg "target" covering target/target1/target2/…) and target
// links (keyed by the target-name property, eg "targetname"). An edge
// exists whenever a source value equals a target value under the
// schema-declared key types.
type LinkManager struct {
	sources map[NodeID][]linkSource
	targets map[NodeID][]linkTarget

	byValueSources map[string][]linkSource
	byValueTargets map[string][]linkTarget
}

type linkSource struct {
	node   NodeID
	bucket string
	key    string
	value  string
}

type linkTarget struct {
	node  NodeID
	key   string
	value string
}

// LinkRef names one endpoint of a resolved edge.
type LinkRef struct {
	Node NodeID
	Key  string
}

func newLinkManager() *LinkManager {
	return &LinkManager{
		sources:        map[NodeID][]linkSource{},
		targets:        map[NodeID][]linkTarget{},
		byValueSources: map[string][]linkSource{},
		byValueTargets: map[string][]linkTarget{},
	}
}

// sourceBucket returns the logical bucket name for a source-link
// property key (spec §4.D: "target, target1, target2, … share a single
// logical name bucket"). Definitions register this mapping explicitly
// in SourceLinkKeys; a key absent from that map is not a source key.
func sourceBucket(def *EntityDefinition, key string) (string, bool) {
	if def == nil {
		return "", false
	}
	b, ok := def.SourceLinkKeys[key]
	return b, ok
}

func isTargetKey(def *EntityDefinition, key string) bool {
	return def != nil && def.TargetLinkKeys[key]
}

// addEntityNode registers every source/target link property that id's
// EntityData declares, per its EntityDefinition's key typing.
func (lm *LinkManager) addEntityNode(w *World, id NodeID) {
	n := w.Node(id)
	if n == nil || n.kind != KindEntity || n.entity == nil || n.entity.Definition == nil {
		return
	}
	def := n.entity.Definition
	for _, p := range n.entity.props {
		if bucket, ok := sourceBucket(def, p.Key); ok {
			s := linkSource{node: id, bucket: bucket, key: p.Key, value: p.Value}
			lm.sources[id] = append(lm.sources[id], s)
			lm.byValueSources[p.Value] = append(lm.byValueSources[p.Value], s)
		}
		if isTargetKey(def, p.Key) {
			t := linkTarget{node: id, key: p.Key, value: p.Value}
			lm.targets[id] = append(lm.targets[id], t)
			lm.byValueTargets[p.Value] = append(lm.byValueTargets[p.Value], t)
		}
	}
}

// removeEntityNode unregisters every link registered for id. Per spec
// §4.D, the byValue map entries are left in place with the node's
// entries filtered out (rather than the whole value bucket deleted) so
// that hasMissingTarget/hasMissingSource continue to see a present-but-
// empty list for values no longer produced by anyone else.
func (lm *LinkManager) removeEntityNode(id NodeID) {
	for _, s := range lm.sources[id] {
		lm.byValueSources[s.value] = filterSources(lm.byValueSources[s.value], id)
	}
	for _, t := range lm.targets[id] {
		lm.byValueTargets[t.value] = filterTargets(lm.byValueTargets[t.value], id)
	}
	delete(lm.sources, id)
	delete(lm.targets, id)
}

// reindex drops and re-derives id's link registrations, used after a
// property edit changes a link-typed key's value.
func (lm *LinkManager) reindex(w *World, id NodeID) {
	lm.removeEntityNode(id)
	lm.addEntityNode(w, id)
}

func filterSources(in []linkSource, id NodeID) []linkSource {
	out := in[:0:0]
	for _, s := range in {
		if s.node != id {
			out = append(out, s)
		}
	}
	return out
}

func filterTargets(in []linkTarget, id NodeID) []linkTarget {
	out := in[:0:0]
	for _, t := range in {
		if t.node != id {
			out = append(out, t)
		}
	}
	return out
}

// linksFrom returns, for each source bucket node contributes to, the
// list of resolved (target, key) edges.
func (lm *LinkManager) linksFrom(node NodeID) map[string][]LinkRef {
	out := map[string][]LinkRef{}
	for _, s := range lm.sources[node] {
		for _, t := range lm.byValueTargets[s.value] {
			out[s.bucket] = append(out[s.bucket], LinkRef{Node: t.node, Key: t.key})
		}
	}
	return out
}

// linksTo is the inverse of linksFrom: for each target key node
// contributes, the list of resolved (source, bucket) edges.
func (lm *LinkManager) linksTo(node NodeID) map[string][]LinkRef {
	out := map[string][]LinkRef{}
	for _, t := range lm.targets[node] {
		for _, s := range lm.byValueSources[t.value] {
			out[t.key] = append(out[t.key], LinkRef{Node: s.node, Key: s.bucket})
		}
	}
	return out
}

// hasLink reports whether a source-key on a resolves, under bucket
// keyS, to b.
func (lm *LinkManager) hasLink(a, b NodeID, keyS string) bool {
	for _, s := range lm.sources[a] {
		if s.bucket != keyS {
			continue
		}
		for _, t := range lm.byValueTargets[s.value] {
			if t.node == b {
				return true
			}
		}
	}
	return false
}

// hasMissingTarget reports whether node has a value under source key
// keyS whose matching targets are all absent from the index (spec
// §4.D).
func (lm *LinkManager) hasMissingTarget(node NodeID, keyS string) bool {
	for _, s := range lm.sources[node] {
		if s.key != keyS {
			continue
		}
		if len(lm.byValueTargets[s.value]) == 0 {
			return true
		}
	}
	return false
}

// hasMissingSource is hasMissingTarget's dual for a target key.
func (lm *LinkManager) hasMissingSource(node NodeID, keyT string) bool {
	for _, t := range lm.targets[node] {
		if t.key != keyT {
			continue
		}
		if len(lm.byValueSources[t.value]) == 0 {
			return true
		}
	}
	return false
}
