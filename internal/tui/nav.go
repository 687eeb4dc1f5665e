package tui

import "rabbithole/internal/model"

type direction int

const (
	dirUp direction = iota
	dirDown
	dirLeft
	dirRight
)

// step returns the node reached from activeID by one arrow key: up to the
// parent, down to the most recently visited child, left/right to the
// neighbouring sibling. It returns activeID when there is nowhere to go, and
// the root when activeID is not in the tree.
func step(nodes []model.TreeNode, activeID string, d direction) string {
	cur, ok := findNode(nodes, activeID)
	if !ok {
		for _, n := range nodes {
			if n.IsRoot() {
				return n.ID
			}
		}
		return activeID
	}
	switch d {
	case dirUp:
		if p := cur.Parent(); p != "" {
			if _, ok := findNode(nodes, p); ok {
				return p
			}
		}
	case dirDown:
		kids := children(nodes, cur.ID)
		if len(kids) == 0 {
			return activeID
		}
		latest := kids[0]
		for _, k := range kids[1:] {
			if k.Timestamp > latest.Timestamp {
				latest = k
			}
		}
		return latest.ID
	case dirLeft, dirRight:
		if cur.IsRoot() {
			return activeID
		}
		sibs := children(nodes, cur.Parent())
		for i, s := range sibs {
			if s.ID != cur.ID {
				continue
			}
			if d == dirLeft && i > 0 {
				return sibs[i-1].ID
			}
			if d == dirRight && i+1 < len(sibs) {
				return sibs[i+1].ID
			}
		}
	}
	return activeID
}

// children returns the children of id in insertion order, which is also
// their left-to-right order in the layout.
func children(nodes []model.TreeNode, id string) []model.TreeNode {
	var out []model.TreeNode
	for _, n := range nodes {
		if n.ParentID != nil && *n.ParentID == id {
			out = append(out, n)
		}
	}
	return out
}

func findNode(nodes []model.TreeNode, id string) (model.TreeNode, bool) {
	if id == "" {
		return model.TreeNode{}, false
	}
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return model.TreeNode{}, false
}
