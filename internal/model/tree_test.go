package model

import "testing"

func TestParseSourceContext(t *testing.T) {
	cases := map[string]SourceContext{
		"SESSION_START":    ContextSessionStart,
		" text_selection ": ContextTextSelection,
		"modal-navigation": ContextModalNavigation,
		"TREE_NAVIGATION":  ContextTreeNavigation,
		"BOOKMARK":         SourceContext("BOOKMARK"),
	}
	for in, want := range cases {
		if got := ParseSourceContext(in); got != want {
			t.Fatalf("ParseSourceContext(%q) = %q, want %q", in, got, want)
		}
	}
	if SourceContext("BOOKMARK").Known() {
		t.Fatalf("unknown context reported as known")
	}
}

func TestLatestNodeID(t *testing.T) {
	if got := LatestNodeID(nil); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	nodes := []TreeNode{
		{ID: "a", Timestamp: 5},
		{ID: "b", Timestamp: 9},
		{ID: "c", Timestamp: 9},
		{ID: "d", Timestamp: 1},
	}
	if got := LatestNodeID(nodes); got != "b" {
		t.Fatalf("expected first of the tied latest nodes, got %q", got)
	}
}

func TestCloneNodes_CopiesParentPointers(t *testing.T) {
	orig := []TreeNode{{ID: "a"}, {ID: "b", ParentID: StrPtr("a")}}
	cp := CloneNodes(orig)
	*cp[1].ParentID = "z"
	if orig[1].Parent() != "a" {
		t.Fatalf("clone shares parent pointer with the original")
	}
	if StrPtr("") != nil || PtrStr(nil) != "" {
		t.Fatalf("empty string must map to nil and back")
	}
}
