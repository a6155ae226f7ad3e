// Package loader implements the agent-file document format: the engine
// consumes an opaque rerender() function; this package is the host-side
// half that parses this module's own source format (a text/template-
// templated YAML document) into a plan.Node tree once per frame,
// re-evaluating the template against the current state snapshot so
// a document can branch on phase/iteration without a scripting runtime.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/dotcommander/smithers/internal/models"
	"github.com/dotcommander/smithers/internal/plan"
)

// specialKeys are consumed by the loader itself rather than becoming node
// props: type discriminates the node, key is the sibling-identity key,
// children nests the next level of the tree.
var specialKeys = map[string]bool{"type": true, "key": true, "children": true}

// Document is a parsed, not-yet-rendered agent file: a YAML document whose
// string content may itself contain text/template directives, so a fresh
// Render call reflects whatever the caller's current state snapshot is.
type Document struct {
	Path   string
	Source string
	tmpl   *template.Template
}

// Load reads and template-parses (but does not render) an agent file.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.LoadError{Path: path, Reason: err.Error()}
	}
	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=zero").Parse(string(raw))
	if err != nil {
		return nil, &models.LoadError{Path: path, Reason: fmt.Sprintf("template parse: %s", err)}
	}
	return &Document{Path: path, Source: string(raw), tmpl: tmpl}, nil
}

// Render executes the document's template against data, then parses the
// resulting YAML into a plan.Node tree. Called once per frame; data is
// typically the current state.Manager snapshot plus the iteration counter.
func (d *Document) Render(data any) (*plan.Node, error) {
	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, data); err != nil {
		return nil, &models.LoadError{Path: d.Path, Reason: fmt.Sprintf("template exec: %s", err)}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, &models.LoadError{Path: d.Path, Reason: fmt.Sprintf("yaml: %s", err)}
	}
	if len(doc.Content) == 0 {
		return plan.NewNode(plan.TypeRoot, nil, nil), nil
	}

	root, err := buildNode(doc.Content[0])
	if err != nil {
		return nil, &models.LoadError{Path: d.Path, Reason: err.Error()}
	}
	if !root.IsRoot() {
		root = plan.NewNode(plan.TypeRoot, nil, nil, root)
	}
	return root, nil
}

// buildNode converts one YAML mapping node into a plan.Node, preserving
// declaration order for props (yaml.Node.Content pairs appear in document
// order, unlike a decode into map[string]any).
func buildNode(n *yaml.Node) (*plan.Node, error) {
	if n.Kind == yaml.DocumentNode {
		return buildNode(n.Content[0])
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping, got a %s", n.Line, yamlKindName(n.Kind))
	}

	nodeType := ""
	key := ""
	hasKey := false
	props := make(map[string]any)
	var order []string
	var children []*plan.Node

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		name := keyNode.Value

		switch {
		case name == "type":
			if err := valNode.Decode(&nodeType); err != nil {
				return nil, fmt.Errorf("line %d: type: %w", valNode.Line, err)
			}
		case name == "key":
			if err := valNode.Decode(&key); err != nil {
				return nil, fmt.Errorf("line %d: key: %w", valNode.Line, err)
			}
			hasKey = true
		case name == "children":
			if valNode.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("line %d: children must be a list", valNode.Line)
			}
			for _, c := range valNode.Content {
				child, err := buildNode(c)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
		case specialKeys[name]:
			// unreachable: every special key is handled above explicitly.
		default:
			var v any
			if err := valNode.Decode(&v); err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", valNode.Line, name, err)
			}
			props[name] = v
			order = append(order, name)
		}
	}

	if nodeType == "" {
		nodeType = plan.TypeRoot
	}
	node := plan.NewNode(nodeType, props, order, children...)
	if hasKey {
		node.SetKey(key)
	}
	return node, nil
}

func yamlKindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "node"
	}
}
