package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Serialize renders a node tree to its canonical XML form: lowercased tag
// names, `key` first among attributes when present, other props in
// declaration order, self-closing empty elements, 2-space indented
// children, and `&<>"'` escaping on every attribute value and text node.
func Serialize(n *Node) string {
	var b strings.Builder
	writeNode(&b, n, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n *Node, depth int) {
	switch {
	case n.IsRoot():
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte('\n')
			}
			writeNode(b, c, depth)
		}
		return
	case n.IsText():
		writeIndent(b, depth)
		b.WriteString(escapeText(n.TextValue()))
		return
	}

	tag := strings.ToLower(n.Type)
	writeIndent(b, depth)
	b.WriteByte('<')
	b.WriteString(tag)
	writeAttrs(b, n)

	if len(n.Children) == 0 {
		b.WriteString(" />")
		return
	}

	b.WriteByte('>')
	for _, c := range n.Children {
		b.WriteByte('\n')
		writeNode(b, c, depth+1)
	}
	b.WriteByte('\n')
	writeIndent(b, depth)
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
}

func writeAttrs(b *strings.Builder, n *Node) {
	if n.HasKey {
		b.WriteString(` key="`)
		b.WriteString(escapeAttr(n.Key))
		b.WriteByte('"')
	}
	for _, name := range n.orderedPropNames() {
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(propToString(n.Props[name])))
		b.WriteByte('"')
	}
}

func writeIndent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

// propToString renders a prop value the way the canonical form requires:
// primitives as-is, objects/slices as JSON.
func propToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
func escapeText(s string) string { return attrEscaper.Replace(s) }

// sortedPropNames is used by the content-hash function, which hashes props
// in sorted order rather than declaration order (declaration order is a
// serialisation concern; hash stability requires a canonical order).
func sortedPropNames(n *Node) []string {
	names := n.orderedPropNames()
	sort.Strings(names)
	return names
}
