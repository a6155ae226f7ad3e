package plan

import "testing"

func TestDetectWarningsFlagsMisplacedKnownType(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil,
		NewNode("widget", nil, nil,
			NewNode(TypeHuman, nil, nil),
		),
	)

	n := DetectWarnings(root)
	if n != 1 {
		t.Fatalf("expected 1 warning, got %d", n)
	}

	human := root.Children[0].Children[0]
	if len(human.Warnings) != 1 {
		t.Fatalf("expected warning attached to the human node, got %d", len(human.Warnings))
	}
	if human.Warnings[0].Code != WarningMisplacedNode {
		t.Fatalf("got code %q want %q", human.Warnings[0].Code, WarningMisplacedNode)
	}
}

func TestDetectWarningsAllowsKnownUnderRoot(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil,
		NewNode(TypeHuman, nil, nil),
		NewNode("claude", nil, nil),
	)

	if n := DetectWarnings(root); n != 0 {
		t.Fatalf("expected no warnings directly under ROOT, got %d", n)
	}
}

func TestDetectWarningsAllowsKnownUnderKnownParent(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil,
		NewNode("phase", nil, nil,
			NewNode("claude", nil, nil,
				NewNode(TypeHuman, nil, nil),
			),
		),
	)

	if n := DetectWarnings(root); n != 0 {
		t.Fatalf("expected no warnings when every ancestor is known, got %d", n)
	}
}

func TestDetectWarningsIgnoresUnknownUnderUnknown(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil,
		NewNode("widget", nil, nil,
			NewNode("gadget", nil, nil),
		),
	)

	if n := DetectWarnings(root); n != 0 {
		t.Fatalf("an unknown type nested under an unknown parent is not this warning's concern, got %d", n)
	}
}

func TestDetectWarningsIsIdempotentNotCumulative(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil,
		NewNode("widget", nil, nil,
			NewNode(TypeHuman, nil, nil),
		),
	)

	DetectWarnings(root)
	DetectWarnings(root)

	human := root.Children[0].Children[0]
	if len(human.Warnings) != 1 {
		t.Fatalf("expected warnings to reset rather than accumulate across calls, got %d", len(human.Warnings))
	}
}

func TestDetectWarningsNeverAltersSerialization(t *testing.T) {
	root := NewNode(TypeRoot, nil, nil,
		NewNode("widget", nil, nil,
			NewNode(TypeHuman, map[string]any{"question": "proceed?"}, []string{"question"}),
		),
	)

	before := Serialize(root)
	DetectWarnings(root)
	after := Serialize(root)

	if before != after {
		t.Fatalf("serialization changed after DetectWarnings:\nbefore: %s\nafter:  %s", before, after)
	}
}

func TestIsKnownTypeCaseInsensitive(t *testing.T) {
	if !IsKnownType("CLAUDE") {
		t.Fatal("expected known-type lookup to be case-insensitive")
	}
	if IsKnownType("not-a-real-type") {
		t.Fatal("expected unknown type to report false")
	}
}
