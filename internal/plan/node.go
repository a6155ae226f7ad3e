// Package plan implements the declarative node tree that an agent file
// renders: the Node type, its canonical XML serialization, and the content
// hash used to memoise dispatch decisions across frames.
package plan

import (
	"fmt"
	"strings"
)

// Reserved prop names excluded from serialisation attributes, content hash,
// and the canonical XML form. They carry callables or structural data rather
// than hashable JSON-representable values.
const (
	PropChildren        = "children"
	PropOnFinished      = "onFinished"
	PropOnError         = "onError"
	PropOnStreamStart    = "onStreamStart"
	PropOnStreamDelta    = "onStreamDelta"
	PropOnStreamEnd      = "onStreamEnd"
	PropValidate        = "validate"
)

// IsReservedProp reports whether name is excluded from serialization,
// content hashing, and debug snapshots.
func IsReservedProp(name string) bool {
	return reservedProps[name]
}

var reservedProps = map[string]bool{
	PropChildren:      true,
	PropOnFinished:    true,
	PropOnError:       true,
	PropOnStreamStart: true,
	PropOnStreamDelta: true,
	PropOnStreamEnd:   true,
	PropValidate:      true,
}

// TypeRoot is the distinguished synthetic root, the single entry point of
// every tree. It never self-serialises; its canonical form is the
// newline-joined serialisation of its children.
const TypeRoot = "ROOT"

// TypeText is the distinguished leaf carrying a scalar "value" prop,
// rendered as escaped character data inside its parent.
const TypeText = "TEXT"

// Control-flow node types the engine looks for during its per-frame walk.
const (
	TypeStop      = "smithers-stop"
	TypeStopAlias = "stop"
	TypeHuman     = "human"
	TypeReview    = "review"
	TypeSubagent  = "subagent"
)

// IsStop reports whether this node is a stop marker (either spelling).
func (n *Node) IsStop() bool { return n.Type == TypeStop || n.Type == TypeStopAlias }

// IsHuman reports whether this node is a human-gate request.
func (n *Node) IsHuman() bool { return n.Type == TypeHuman }

// IsReview reports whether this node is a review-gate request.
func (n *Node) IsReview() bool { return n.Type == TypeReview }

// executableTypes is the superset of node types the engine considers
// "executable" — dispatched through the middleware pipeline to an adapter.
// "claude" is the canonical example; this module treats any of the shipped
// CLI adapters as executable (decided in DESIGN.md).
var executableTypes = map[string]bool{
	"claude":     true,
	"claude-cli": true,
	"codex":      true,
	"gemini":     true,
}

// knownTypes is the full reserved/known node-type vocabulary an agent file
// is expected to build trees from. It is deliberately broader than
// executableTypes ∪ {control-flow types}: most of these names (phase, step,
// task, persona, constraints, orchestration, messages, message, tool-call,
// ralph) have no engine-side behaviour of their own, but authoring a tree
// that nests one under an unrecognised parent is almost always a typo
// rather than a deliberate extension point, which is what MisplacedNode
// warnings exist to catch.
var knownTypes = map[string]bool{
	"claude":        true,
	"claude-cli":    true,
	"codex":         true,
	"gemini":        true,
	"ralph":         true,
	"phase":         true,
	"step":          true,
	"task":          true,
	"persona":       true,
	"constraints":   true,
	TypeHuman:       true,
	TypeStop:        true,
	TypeStopAlias:   true,
	TypeSubagent:    true,
	"orchestration": true,
	TypeReview:      true,
	"text":          true,
	"root":          true,
	"messages":      true,
	"message":       true,
	"tool-call":     true,
}

// IsKnownType reports whether typ is in the reserved/known node-type
// vocabulary (case-insensitively, matching how Serialize lowercases tags).
func IsKnownType(typ string) bool {
	return knownTypes[strings.ToLower(typ)]
}

// Node is a tagged-struct sum type: ROOT, TEXT, and executable/structural
// node types are all represented by the same shape, discriminated by Type.
// Children is owned (value slice); Parent is a weak, non-owning back
// reference used for sibling-key-uniqueness checks and upward lookups.
type Node struct {
	Type     string
	Key      string
	HasKey   bool
	Props    map[string]any
	// propOrder preserves declaration order for canonical XML attribute
	// rendering; Props alone (a map) would not.
	propOrder []string
	Children  []*Node
	parent    *Node

	// Warnings accumulates authoring-mistake diagnostics attached by
	// DetectWarnings (e.g. MisplacedNode). Serialize never reads this field
	// and never alters its output because of it — warnings are advisory,
	// collected out-of-band from the canonical XML.
	Warnings []Warning
}

// Warning is a single authoring-mistake diagnostic attached to a node.
type Warning struct {
	Code    string
	Message string
}

// NewNode constructs a Node and wires parent back-references for children,
// satisfying the invariant children[i].parent == self.
func NewNode(typ string, props map[string]any, propOrder []string, children ...*Node) *Node {
	n := &Node{
		Type:      typ,
		Props:     props,
		propOrder: propOrder,
	}
	for _, c := range children {
		c.parent = n
	}
	n.Children = children
	return n
}

// SetKey sets the node's sibling-identity key.
func (n *Node) SetKey(key string) {
	n.Key = key
	n.HasKey = true
}

// Parent returns the weak parent reference, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether this is the synthetic tree root.
func (n *Node) IsRoot() bool { return n.Type == TypeRoot }

// IsText reports whether this is a TEXT leaf.
func (n *Node) IsText() bool { return n.Type == TypeText }

// IsExecutable reports whether the engine should dispatch this node type
// through an adapter.
func (n *Node) IsExecutable() bool { return executableTypes[n.Type] }

// TextValue returns the scalar "value" prop of a TEXT node.
func (n *Node) TextValue() string {
	v, _ := n.Props["value"].(string)
	return v
}

// AddChild appends a child and wires its parent back-reference.
func (n *Node) AddChild(c *Node) {
	c.parent = n
	n.Children = append(n.Children, c)
}

// ValidateSiblingKeys checks that Key, when present, is unique among
// immediate siblings.
func (n *Node) ValidateSiblingKeys() error {
	seen := make(map[string]bool, len(n.Children))
	for _, c := range n.Children {
		if !c.HasKey {
			continue
		}
		if seen[c.Key] {
			return &DuplicateKeyError{Parent: n.Type, Key: c.Key}
		}
		seen[c.Key] = true
	}
	return nil
}

// DuplicateKeyError reports two siblings sharing a key.
type DuplicateKeyError struct {
	Parent string
	Key    string
}

func (e *DuplicateKeyError) Error() string {
	return "duplicate sibling key " + e.Key + " under " + e.Parent
}

// NodePath computes a stable identity for a node across frames: the
// dot-joined chain of ancestor "type:key" segments (falling back to a
// positional index among same-type siblings when a node has no key). The
// engine uses this as the node_key column so memoisation and dispatch
// history survive the tree being rebuilt from scratch every frame.
func NodePath(n *Node) string {
	if n == nil {
		return ""
	}
	var segments []string
	for cur := n; cur != nil && !cur.IsRoot(); cur = cur.parent {
		segments = append([]string{segmentFor(cur)}, segments...)
	}
	path := ""
	for _, s := range segments {
		path += "/" + s
	}
	return path
}

func segmentFor(n *Node) string {
	if n.HasKey {
		return n.Type + ":" + n.Key
	}
	if n.parent == nil {
		return n.Type
	}
	index := 0
	for _, sibling := range n.parent.Children {
		if sibling == n {
			break
		}
		if sibling.Type == n.Type {
			index++
		}
	}
	return fmt.Sprintf("%s:%d", n.Type, index)
}

// orderedPropNames returns the node's non-reserved prop names in
// declaration order, falling back to Props map order (Go map iteration,
// unordered) only when propOrder was not supplied.
func (n *Node) orderedPropNames() []string {
	if len(n.propOrder) > 0 {
		out := make([]string, 0, len(n.propOrder))
		for _, name := range n.propOrder {
			if !reservedProps[name] {
				out = append(out, name)
			}
		}
		return out
	}
	out := make([]string, 0, len(n.Props))
	for name := range n.Props {
		if !reservedProps[name] {
			out = append(out, name)
		}
	}
	return out
}
