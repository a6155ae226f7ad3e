package plan

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ContentHash computes a stable fingerprint of (type, sorted non-excluded
// props, recursive content hashes of children). Key, when present, is
// hashed first but as a regular attribute — it does not receive special
// treatment beyond ordering. The hash of an empty node is simply a hash of
// its type.
func ContentHash(n *Node) string {
	var b strings.Builder
	writeHashInput(&b, n)
	sum := xxhash.Sum64String(b.String())
	return strconv.FormatUint(sum, 16)
}

// writeHashInput builds the canonical pre-image fed to xxhash: a
// delimiter-separated encoding chosen so that no combination of type/prop/
// child values can produce a collision between structurally different
// trees (delimiters are themselves escaped within values).
func writeHashInput(b *strings.Builder, n *Node) {
	b.WriteString(strings.ToLower(n.Type))
	b.WriteByte('\x00')

	if n.HasKey {
		b.WriteString("key=")
		b.WriteString(hashEscape(n.Key))
		b.WriteByte('\x1f')
	}
	for _, name := range sortedPropNames(n) {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(hashEscape(propToString(n.Props[name])))
		b.WriteByte('\x1f')
	}
	b.WriteByte('\x00')

	for _, c := range n.Children {
		writeHashInput(b, c)
		b.WriteByte('\x02')
	}
}

// hashEscape neutralises the control bytes used as structural delimiters so
// that no attacker-controlled prop value can forge a hash collision by
// embedding one.
func hashEscape(s string) string {
	if !strings.ContainsAny(s, "\x00\x1f\x02") {
		return s
	}
	r := strings.NewReplacer("\x00", "\\0", "\x1f", "\\u", "\x02", "\\c")
	return r.Replace(s)
}
