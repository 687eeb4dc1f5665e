package tui

import (
	"testing"
	"time"

	"rabbithole/internal/model"
)

func TestStep(t *testing.T) {
	nodes := []model.TreeNode{
		{ID: "r", Title: "R", Timestamp: 1},
		{ID: "a", Title: "A", ParentID: model.StrPtr("r"), Timestamp: 5},
		{ID: "b", Title: "B", ParentID: model.StrPtr("r"), Timestamp: 2},
		{ID: "a1", Title: "A1", ParentID: model.StrPtr("a"), Timestamp: 3},
	}
	cases := []struct {
		from string
		dir  direction
		want string
	}{
		{from: "", dir: dirDown, want: "r"},
		{from: "missing", dir: dirUp, want: "r"},
		{from: "r", dir: dirUp, want: "r"},
		{from: "r", dir: dirDown, want: "a"},
		{from: "r", dir: dirLeft, want: "r"},
		{from: "a", dir: dirRight, want: "b"},
		{from: "b", dir: dirLeft, want: "a"},
		{from: "b", dir: dirRight, want: "b"},
		{from: "a", dir: dirDown, want: "a1"},
		{from: "a1", dir: dirDown, want: "a1"},
		{from: "a1", dir: dirUp, want: "a"},
	}
	for _, tc := range cases {
		if got := step(nodes, tc.from, tc.dir); got != tc.want {
			t.Fatalf("step(%q, %v) = %q, want %q", tc.from, tc.dir, got, tc.want)
		}
	}
}

func TestLatestPath(t *testing.T) {
	nodes := []model.TreeNode{
		{ID: "r", Title: "R", Timestamp: 1},
		{ID: "a", Title: "A", ParentID: model.StrPtr("r"), Timestamp: 3},
		{ID: "b", Title: "B", ParentID: model.StrPtr("a"), Timestamp: 9},
		{ID: "c", Title: "C", ParentID: model.StrPtr("r"), Timestamp: 9},
	}
	path := latestPath(nodes)
	var ids []string
	for _, n := range path {
		ids = append(ids, n.ID)
	}
	if len(ids) != 3 || ids[0] != "r" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("expected r,a,b (first of tied timestamps), got %v", ids)
	}
	if latestPath(nil) != nil {
		t.Fatalf("expected nil for an empty tree")
	}
}

func TestPreviewMarkdown(t *testing.T) {
	now := time.UnixMilli(10_000_000)
	tr := model.SavedTree{
		ID:        "tree-x",
		Name:      "Pets_*",
		CreatedAt: now.Add(-5 * time.Minute).UnixMilli(),
		Nodes: []model.TreeNode{
			{ID: "r", Title: "Dog", URL: "https://en.wikipedia.org/wiki/Dog", Timestamp: 1},
			{ID: "c", Title: "Cat", URL: "https://en.wikipedia.org/wiki/Cat", ParentID: model.StrPtr("r"), Timestamp: 2},
		},
	}
	md := previewMarkdown(tr, now)
	want := "## Pets\\_\\*\n\n*2 articles, saved 5m ago*\n\n- [Dog](https://en.wikipedia.org/wiki/Dog)\n  - [Cat](https://en.wikipedia.org/wiki/Cat)\n"
	if md != want {
		t.Fatalf("markdown mismatch:\n got %q\nwant %q", md, want)
	}

	empty := previewMarkdown(model.SavedTree{ID: "tree-e"}, now)
	if empty != "## tree-e\n\n*0 articles, saved never*\n\n_empty tree_\n" {
		t.Fatalf("unexpected empty preview %q", empty)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		10 * time.Second: "just now",
		3 * time.Minute:  "3m ago",
		5 * time.Hour:    "5h ago",
	}
	for ago, want := range cases {
		if got := relativeTime(now.Add(-ago).UnixMilli(), now); got != want {
			t.Fatalf("relativeTime(-%v) = %q, want %q", ago, got, want)
		}
	}
}

func TestRenderMarkdownFallsBackOnEmpty(t *testing.T) {
	if got := renderMarkdown("   ", 40); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := renderMarkdown("## Title", 40); got == "" {
		t.Fatalf("expected rendered output")
	}
}
