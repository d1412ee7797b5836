package mapkit

import "strings"

// IssueType is a unique, freshly allocated bit identifying a Validator
// (spec §4.I). Built-in validators claim the low bits; callers
// registering their own validators should use NextIssueType to avoid
// collisions.
type IssueType uint32

var nextIssueType IssueType = 1

// NextIssueType allocates and returns a fresh, collision-free bit for a
// caller-defined Validator.
func NextIssueType() IssueType {
	t := nextIssueType
	nextIssueType <<= 1
	return t
}

const (
	IssueEmptyPropertyKey IssueType = 1 << iota
	IssueEmptyPropertyValue
	IssueLongPropertyKey
	IssuePropertyKeyWithDoubleQuotes
	IssuePropertyValueWithDoubleQuotes
	IssueMissingClassname
	IssueMissingDefinition
	IssueEmptyBrushEntity
	IssueWorldBounds
	IssueProtectedPropertiesClearedOnRelink
)

func init() {
	// Reserve the built-in bits above so NextIssueType never hands out a
	// colliding one.
	nextIssueType = IssueProtectedPropertiesClearedOnRelink << 1
}

// Issue is one validator finding: the producing node, its type, a
// human-readable message, and an arbitrary payload a quick fix can use
// (e.g. the offending property key).
type Issue struct {
	Node    NodeID
	Type    IssueType
	Message string
	Payload any
}

// QuickFix describes one remediation a Validator offers. Apply executes
// the fix for the given issues through the command engine, as one
// transaction, so it is itself undoable.
type QuickFix struct {
	Name  string
	Apply func(w *World, issues []Issue) error
}

// Validator inspects nodes and reports Issues; it never mutates the
// world itself (spec §4.I: "validators are side-effect free").
type Validator interface {
	Type() IssueType
	Description() string
	Validate(w *World, n *Node) []Issue
	QuickFixes() []QuickFix
}

// --- Pipeline ------------------------------------------------------------

// ValidateNodes runs every validator in validators against each node in
// ids, returning every issue raised. The pipeline is pull-based: nothing
// here is cached or re-run automatically (spec §4.I).
func ValidateNodes(w *World, ids []NodeID, validators []Validator) []Issue {
	var out []Issue
	for _, id := range ids {
		n := w.Node(id)
		if n == nil {
			continue
		}
		for _, v := range validators {
			out = append(out, v.Validate(w, n)...)
		}
	}
	return out
}

// ValidateWorld runs validators over every node reachable from the
// world root.
func ValidateWorld(w *World, validators []Validator) []Issue {
	var out []Issue
	w.walkAll(w.root, func(n *Node) {
		for _, v := range validators {
			out = append(out, v.Validate(w, n)...)
		}
	})
	return out
}

// DefaultValidators returns the built-in validator set named in §4.I.
func DefaultValidators(maxPropertyKeyLen int) []Validator {
	return []Validator{
		&emptyPropertyKeyValidator{},
		&emptyPropertyValueValidator{},
		&longPropertyKeyValidator{maxLen: maxPropertyKeyLen},
		&propertyKeyQuotesValidator{},
		&propertyValueQuotesValidator{},
		&missingClassnameValidator{},
		&missingDefinitionValidator{},
		&emptyBrushEntityValidator{},
		&worldBoundsValidator{},
		&protectedPropertiesClearedOnRelinkValidator{},
	}
}

// removePropertyFix returns a QuickFix that removes the property key
// named in each issue's Payload via removePropertyCommand.
func removePropertyFix(name string) QuickFix {
	return QuickFix{
		Name: name,
		Apply: func(w *World, issues []Issue) error {
			w.BeginTransaction(name)
			for _, iss := range issues {
				key, ok := iss.Payload.(string)
				if !ok {
					continue
				}
				if err := w.Execute(&removePropertyCommand{node: iss.Node, key: key}); err != nil {
					w.Rollback()
					return err
				}
			}
			return w.Commit()
		},
	}
}

// deleteNodesFix returns a QuickFix that deletes every issue's node.
func deleteNodesFix(name string) QuickFix {
	return QuickFix{
		Name: name,
		Apply: func(w *World, issues []Issue) error {
			w.BeginTransaction(name)
			for _, iss := range issues {
				if w.Node(iss.Node) == nil {
					continue
				}
				if err := w.Execute(&removeNodeCommand{id: iss.Node}); err != nil {
					w.Rollback()
					return err
				}
			}
			return w.Commit()
		},
	}
}

// replaceQuotesFix returns a QuickFix that rewrites `"` to `'` in either
// the offending key or value, per issue kind.
func replaceQuotesFix(name string, inKey bool) QuickFix {
	return QuickFix{
		Name: name,
		Apply: func(w *World, issues []Issue) error {
			w.BeginTransaction(name)
			for _, iss := range issues {
				n := w.Node(iss.Node)
				if n == nil || n.entity == nil {
					continue
				}
				key, _ := iss.Payload.(string)
				if inKey {
					value, _ := n.entity.Get(key)
					cleaned := strings.ReplaceAll(key, `"`, `'`)
					if err := w.Execute(&removePropertyCommand{node: iss.Node, key: key}); err != nil {
						w.Rollback()
						return err
					}
					if err := w.Execute(&setPropertyCommand{node: iss.Node, key: cleaned, value: value}); err != nil {
						w.Rollback()
						return err
					}
				} else {
					value, _ := n.entity.Get(key)
					cleaned := strings.ReplaceAll(value, `"`, `'`)
					if err := w.Execute(&setPropertyCommand{node: iss.Node, key: key, value: cleaned}); err != nil {
						w.Rollback()
						return err
					}
				}
			}
			return w.Commit()
		},
	}
}

// --- Built-in validators (spec §4.I) --------------------------------------

type emptyPropertyKeyValidator struct{}

func (*emptyPropertyKeyValidator) Type() IssueType   { return IssueEmptyPropertyKey }
func (*emptyPropertyKeyValidator) Description() string { return "entity has a property with an empty key" }
func (v *emptyPropertyKeyValidator) QuickFixes() []QuickFix {
	return []QuickFix{removePropertyFix("remove empty-key property")}
}
func (v *emptyPropertyKeyValidator) Validate(w *World, n *Node) []Issue {
	if n.entity == nil {
		return nil
	}
	var out []Issue
	for _, p := range n.entity.Properties() {
		if p.Key == "" {
			out = append(out, Issue{Node: n.id, Type: v.Type(), Message: "property key is empty", Payload: p.Key})
		}
	}
	return out
}

type emptyPropertyValueValidator struct{}

func (*emptyPropertyValueValidator) Type() IssueType   { return IssueEmptyPropertyValue }
func (*emptyPropertyValueValidator) Description() string { return "entity has a property with an empty value" }
func (v *emptyPropertyValueValidator) QuickFixes() []QuickFix {
	return []QuickFix{removePropertyFix("remove empty-value property")}
}
func (v *emptyPropertyValueValidator) Validate(w *World, n *Node) []Issue {
	if n.entity == nil {
		return nil
	}
	var out []Issue
	for _, p := range n.entity.Properties() {
		if p.Value == "" {
			out = append(out, Issue{Node: n.id, Type: v.Type(), Message: "property value is empty", Payload: p.Key})
		}
	}
	return out
}

type longPropertyKeyValidator struct{ maxLen int }

func (*longPropertyKeyValidator) Type() IssueType   { return IssueLongPropertyKey }
func (*longPropertyKeyValidator) Description() string { return "entity has a property key that is too long" }
func (v *longPropertyKeyValidator) QuickFixes() []QuickFix {
	return []QuickFix{removePropertyFix("remove overlong property")}
}
func (v *longPropertyKeyValidator) Validate(w *World, n *Node) []Issue {
	if n.entity == nil {
		return nil
	}
	var out []Issue
	for _, p := range n.entity.Properties() {
		if len(p.Key) >= v.maxLen {
			out = append(out, Issue{Node: n.id, Type: v.Type(), Message: "property key is too long", Payload: p.Key})
		}
	}
	return out
}

type propertyKeyQuotesValidator struct{}

func (*propertyKeyQuotesValidator) Type() IssueType   { return IssuePropertyKeyWithDoubleQuotes }
func (*propertyKeyQuotesValidator) Description() string { return "entity has a property key containing a double quote" }
func (v *propertyKeyQuotesValidator) QuickFixes() []QuickFix {
	return []QuickFix{replaceQuotesFix("replace \" with ' in key", true)}
}
func (v *propertyKeyQuotesValidator) Validate(w *World, n *Node) []Issue {
	if n.entity == nil {
		return nil
	}
	var out []Issue
	for _, p := range n.entity.Properties() {
		if strings.Contains(p.Key, `"`) {
			out = append(out, Issue{Node: n.id, Type: v.Type(), Message: "property key contains a double quote", Payload: p.Key})
		}
	}
	return out
}

type propertyValueQuotesValidator struct{}

func (*propertyValueQuotesValidator) Type() IssueType   { return IssuePropertyValueWithDoubleQuotes }
func (*propertyValueQuotesValidator) Description() string {
	return "entity has a property value containing a double quote"
}
func (v *propertyValueQuotesValidator) QuickFixes() []QuickFix {
	return []QuickFix{replaceQuotesFix("replace \" with ' in value", false)}
}
func (v *propertyValueQuotesValidator) Validate(w *World, n *Node) []Issue {
	if n.entity == nil {
		return nil
	}
	var out []Issue
	for _, p := range n.entity.Properties() {
		if strings.Contains(p.Value, `"`) {
			out = append(out, Issue{Node: n.id, Type: v.Type(), Message: "property value contains a double quote", Payload: p.Key})
		}
	}
	return out
}

type missingClassnameValidator struct{}

func (*missingClassnameValidator) Type() IssueType   { return IssueMissingClassname }
func (*missingClassnameValidator) Description() string { return "entity has no classname property" }
func (v *missingClassnameValidator) QuickFixes() []QuickFix {
	return []QuickFix{deleteNodesFix("delete entity with no classname")}
}
func (v *missingClassnameValidator) Validate(w *World, n *Node) []Issue {
	if n.kind != KindEntity || n.entity == nil {
		return nil
	}
	if _, ok := n.entity.Get("classname"); ok {
		return nil
	}
	return []Issue{{Node: n.id, Type: v.Type(), Message: "entity has no classname property"}}
}

type missingDefinitionValidator struct{}

func (*missingDefinitionValidator) Type() IssueType   { return IssueMissingDefinition }
func (*missingDefinitionValidator) Description() string {
	return "entity's classname is not registered in the game configuration"
}
func (v *missingDefinitionValidator) QuickFixes() []QuickFix { return nil }
func (v *missingDefinitionValidator) Validate(w *World, n *Node) []Issue {
	if n.kind != KindEntity || n.entity == nil || n.entity.Definition != nil {
		return nil
	}
	return []Issue{{Node: n.id, Type: v.Type(), Message: "classname \"" + n.entity.Classname() + "\" is not registered"}}
}

type emptyBrushEntityValidator struct{}

func (*emptyBrushEntityValidator) Type() IssueType   { return IssueEmptyBrushEntity }
func (*emptyBrushEntityValidator) Description() string { return "brush entity has no brushes or patches" }
func (v *emptyBrushEntityValidator) QuickFixes() []QuickFix {
	return []QuickFix{deleteNodesFix("delete empty brush entity")}
}
func (v *emptyBrushEntityValidator) Validate(w *World, n *Node) []Issue {
	if n.kind != KindEntity || n.entity == nil || n.entity.Definition == nil || n.entity.Definition.PointEntity {
		return nil
	}
	if len(n.children) > 0 {
		return nil
	}
	return []Issue{{Node: n.id, Type: v.Type(), Message: "brush entity has no children"}}
}

// protectedPropertiesClearedOnRelinkValidator surfaces the warning a
// reparentCommand leaves behind when a move carries an entity out of
// the linked family that declared its protected properties (spec
// §4.H.3, §9 Open Questions: "moving an entity to a different family
// clears its protectedProperties set").
type protectedPropertiesClearedOnRelinkValidator struct{}

func (*protectedPropertiesClearedOnRelinkValidator) Type() IssueType {
	return IssueProtectedPropertiesClearedOnRelink
}
func (*protectedPropertiesClearedOnRelinkValidator) Description() string {
	return "entity's protected properties were cleared by a move out of their linked family"
}
func (v *protectedPropertiesClearedOnRelinkValidator) QuickFixes() []QuickFix { return nil }
func (v *protectedPropertiesClearedOnRelinkValidator) Validate(w *World, n *Node) []Issue {
	if n.kind != KindEntity || n.entity == nil || !n.entity.ProtectedPropertiesClearedOnRelink {
		return nil
	}
	return []Issue{{Node: n.id, Type: v.Type(), Message: "protected properties were cleared by a cross-family move"}}
}

type worldBoundsValidator struct{}

func (*worldBoundsValidator) Type() IssueType   { return IssueWorldBounds }
func (*worldBoundsValidator) Description() string { return "node's logical bounds escape world bounds" }
func (v *worldBoundsValidator) QuickFixes() []QuickFix {
	return []QuickFix{deleteNodesFix("delete out-of-bounds node")}
}
func (v *worldBoundsValidator) Validate(w *World, n *Node) []Issue {
	if n.kind == KindWorld || n.kind == KindLayer {
		return nil
	}
	b := w.LogicalBounds(n.id)
	if !b.Valid() {
		return nil
	}
	if w.RootData().Bounds.ContainsBounds(b) {
		return nil
	}
	return []Issue{{Node: n.id, Type: v.Type(), Message: "node's bounds escape the world bounds"}}
}

// removePropertyCommand deletes one entity property outright (rather
// than just setting it to ""), for quick fixes that need to remove the
// offending key entirely instead of leaving an empty one behind.
type removePropertyCommand struct {
	node     NodeID
	key      string
	hadPrior bool
	prior    string
}

func (c *removePropertyCommand) Execute(w *World) (Snapshot, error) {
	n := w.Node(c.node)
	if n == nil || n.entity == nil {
		return nil, newErr(KindStructural, "removeProperty: not an entity")
	}
	c.prior, c.hadPrior = n.entity.Get(c.key)
	n.entity.Remove(c.key)
	w.index.reindex(w, c.node)
	w.links.reindex(w, c.node)
	return nil, nil
}

func (c *removePropertyCommand) Undo(w *World, _ Snapshot) error {
	n := w.Node(c.node)
	if n == nil || n.entity == nil {
		return newErr(KindStructural, "removeProperty undo: not an entity")
	}
	if c.hadPrior {
		n.entity.Set(c.key, c.prior)
	}
	w.index.reindex(w, c.node)
	w.links.reindex(w, c.node)
	return nil
}

func (c *removePropertyCommand) ModifiesDocument() bool { return true }
