package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rabbithole/internal/model"
)

func TestExportImportTree_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backups", "pets.json")
	in := model.SavedTree{
		ID:        "tree-pets",
		Name:      "Pets",
		CreatedAt: 42,
		Nodes: []model.TreeNode{
			{ID: "node-a", Title: "Dog", URL: "u1", Timestamp: 1},
			{ID: "node-b", Title: "Cat", URL: "u2", ParentID: model.StrPtr("node-a"), Timestamp: 2},
		},
	}
	if err := ExportTree(path, in); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `"parentId": null`) {
		t.Fatalf("expected explicit null parent in export:\n%s", b)
	}

	got, err := ImportTree(path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got.ID != in.ID || got.Name != in.Name || len(got.Nodes) != 2 || got.Nodes[1].Parent() != "node-a" {
		t.Fatalf("unexpected import: %+v", got)
	}
}

func TestImportTree_RejectsBrokenTrees(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "missing id", body: `{"name":"x","nodes":[]}`},
		{name: "two roots", body: `{"id":"t","nodes":[{"id":"a","title":"A","parentId":null},{"id":"b","title":"B","parentId":null}]}`},
		{name: "dangling parent", body: `{"id":"t","nodes":[{"id":"a","title":"A","parentId":null},{"id":"b","title":"B","parentId":"zzz"}]}`},
		{name: "duplicate title", body: `{"id":"t","nodes":[{"id":"a","title":"A","parentId":null},{"id":"b","title":"A","parentId":"a"}]}`},
		{name: "duplicate id", body: `{"id":"t","nodes":[{"id":"a","title":"A","parentId":null},{"id":"a","title":"B","parentId":"a"}]}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "t.json")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := ImportTree(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestImportTree_EmptyTreeAllowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	if err := os.WriteFile(path, []byte(`{"id":"tree-x","name":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ImportTree(path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got.Nodes == nil || len(got.Nodes) != 0 {
		t.Fatalf("expected empty nodes, got %+v", got.Nodes)
	}
}
