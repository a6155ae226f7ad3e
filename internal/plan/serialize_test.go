package plan

import "testing"

func leaf(value string) *Node {
	return NewNode(TypeText, map[string]any{"value": value}, nil)
}

func TestSerializeRoundTrip(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil,
		NewNode("claude", map[string]any{"model": "sonnet"}, []string{"model"}, leaf("hello")),
	)

	x := Serialize(root)
	if x == "" {
		t.Fatal("expected non-empty serialization")
	}

	// Re-serializing an identical structural copy must reproduce the same
	// bytes.
	root2 := NewNode(TypeRoot, nil, nil,
		NewNode("claude", map[string]any{"model": "sonnet"}, []string{"model"}, leaf("hello")),
	)
	x2 := Serialize(root2)
	if x != x2 {
		t.Fatalf("serialization not stable:\n%s\nvs\n%s", x, x2)
	}
}

func TestSerializeEmptyElementSelfCloses(t *testing.T) {
	n := NewNode("claude", map[string]any{"model": "sonnet"}, []string{"model"})
	got := Serialize(n)
	want := `<claude model="sonnet" />`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSerializeEscapesAttributes(t *testing.T) {
	n := NewNode("claude", map[string]any{"prompt": `<say "hi" & 'bye'>`}, []string{"prompt"})
	got := Serialize(n)
	for _, unsafe := range []string{`"hi"`, "& '"} {
		if contains(got, unsafe) {
			t.Fatalf("output still contains unescaped %q: %s", unsafe, got)
		}
	}
}

func TestContentHashEmptyNodeIsDeterministic(t *testing.T) {
	n := NewNode("claude", nil, nil)
	got := ContentHash(n)
	want := ContentHash(NewNode("claude", nil, nil))
	if got != want {
		t.Fatalf("expected deterministic hash for empty node, got %q vs %q", got, want)
	}
}

func TestContentHashDiffersOnPropChange(t *testing.T) {
	a := NewNode("claude", map[string]any{"model": "sonnet"}, []string{"model"})
	b := NewNode("claude", map[string]any{"model": "opus"}, []string{"model"})
	if ContentHash(a) == ContentHash(b) {
		t.Fatal("expected different hashes for different prop values")
	}
}

func TestContentHashIgnoresReservedProps(t *testing.T) {
	a := NewNode("claude", map[string]any{"model": "sonnet"}, []string{"model"})
	b := NewNode("claude", map[string]any{"model": "sonnet", PropOnFinished: func() {}}, []string{"model", PropOnFinished})
	if ContentHash(a) != ContentHash(b) {
		t.Fatal("reserved props must not affect content hash")
	}
}

func TestValidateSiblingKeysRejectsDuplicates(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil)
	c1 := NewNode("claude", nil, nil)
	c1.SetKey("a")
	c2 := NewNode("claude", nil, nil)
	c2.SetKey("a")
	root.AddChild(c1)
	root.AddChild(c2)

	if err := root.ValidateSiblingKeys(); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
