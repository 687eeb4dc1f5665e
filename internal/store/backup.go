package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rabbithole/internal/model"
)

// ExportTree writes one saved tree as indented JSON.
func ExportTree(path string, t model.SavedTree) error {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return errors.New("export tree: missing path")
	}
	if t.Nodes == nil {
		t.Nodes = []model.TreeNode{}
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return atomicWriteFile(dir, filepath.Base(path)+".*.tmp", path, b, 0o644)
}

// ImportTree reads a tree written by ExportTree and checks it is a single
// rooted tree with unique ids and titles.
func ImportTree(path string) (model.SavedTree, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.SavedTree{}, err
	}
	var t model.SavedTree
	if err := json.Unmarshal(b, &t); err != nil {
		return model.SavedTree{}, fmt.Errorf("import tree: %w", err)
	}
	if strings.TrimSpace(t.ID) == "" {
		return model.SavedTree{}, errors.New("import tree: missing id")
	}
	if err := ValidateNodes(t.Nodes); err != nil {
		return model.SavedTree{}, fmt.Errorf("import tree %s: %w", t.ID, err)
	}
	if t.Nodes == nil {
		t.Nodes = []model.TreeNode{}
	}
	return t, nil
}

// ValidateNodes checks the structural invariants of a node list: unique ids,
// unique titles, at most one root, and every parent present.
func ValidateNodes(nodes []model.TreeNode) error {
	ids := make(map[string]bool, len(nodes))
	titles := make(map[string]bool, len(nodes))
	roots := 0
	for _, n := range nodes {
		if n.ID == "" {
			return errors.New("node without id")
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		if titles[n.Title] {
			return fmt.Errorf("duplicate title %q", n.Title)
		}
		ids[n.ID] = true
		titles[n.Title] = true
		if n.IsRoot() {
			roots++
		}
	}
	if roots > 1 {
		return fmt.Errorf("%d roots", roots)
	}
	if len(nodes) > 0 && roots == 0 {
		return errors.New("no root")
	}
	for _, n := range nodes {
		if p := n.Parent(); p != "" && !ids[p] {
			return fmt.Errorf("node %q: unknown parent %q", n.ID, p)
		}
	}
	return nil
}
