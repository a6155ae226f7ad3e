package plan

import (
	"fmt"
	"strings"
)

// ValidateTree walks every level of n, checking sibling key uniqueness at
// each, not just n's own immediate children.
func ValidateTree(n *Node) error {
	if n == nil {
		return nil
	}
	if err := n.ValidateSiblingKeys(); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := ValidateTree(c); err != nil {
			return err
		}
	}
	return nil
}

// WarningMisplacedNode flags a known node type nested under a parent whose
// type is outside the known vocabulary (ROOT excepted, since every tree's
// top level sits directly under the synthetic root).
const WarningMisplacedNode = "misplaced-node"

// DetectWarnings walks n and every descendant, attaching a
// WarningMisplacedNode warning to each node whose type is in the
// known/reserved vocabulary but whose parent's type is not (and is not
// ROOT). It mutates the tree's Warning fields in place and returns the
// total count attached, purely for caller convenience (e.g. logging);
// Serialize's output is unaffected either way. Re-running DetectWarnings on
// an already-annotated tree resets and recomputes every node's warnings
// rather than appending, so it is safe to call more than once per tree.
func DetectWarnings(n *Node) int {
	return detectWarnings(n, nil)
}

func detectWarnings(n *Node, parent *Node) int {
	if n == nil {
		return 0
	}
	n.Warnings = nil
	count := 0
	if parent != nil && !parent.IsRoot() && IsKnownType(n.Type) && !IsKnownType(parent.Type) {
		n.Warnings = append(n.Warnings, Warning{
			Code:    WarningMisplacedNode,
			Message: fmt.Sprintf("%s node nested under unrecognised parent type %q", strings.ToLower(n.Type), parent.Type),
		})
		count++
	}
	for _, c := range n.Children {
		count += detectWarnings(c, n)
	}
	return count
}
