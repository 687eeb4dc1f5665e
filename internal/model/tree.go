package model

import "strings"

// SourceContext classifies how a newly observed article was discovered.
type SourceContext string

const (
	ContextTextSelection   SourceContext = "TEXT_SELECTION"
	ContextModalNavigation SourceContext = "MODAL_NAVIGATION"
	ContextSessionStart    SourceContext = "SESSION_START"
	ContextTreeNavigation  SourceContext = "TREE_NAVIGATION"
)

// ParseSourceContext normalizes user/extension input. Unknown values are kept
// verbatim so the parent resolution policy can apply its fallback.
func ParseSourceContext(s string) SourceContext {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	switch SourceContext(v) {
	case ContextTextSelection, ContextModalNavigation, ContextSessionStart, ContextTreeNavigation:
		return SourceContext(v)
	}
	return SourceContext(strings.TrimSpace(s))
}

func (c SourceContext) Known() bool {
	switch c {
	case ContextTextSelection, ContextModalNavigation, ContextSessionStart, ContextTreeNavigation:
		return true
	}
	return false
}

type TreeNode struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	ParentID  *string `json:"parentId"`
	Timestamp int64   `json:"timestamp"`
}

// Parent returns the parent id, or "" for the root.
func (n TreeNode) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

func (n TreeNode) IsRoot() bool { return n.ParentID == nil }

type SavedTree struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Nodes     []TreeNode `json:"nodes"`
	CreatedAt int64      `json:"createdAt"`
}

// SessionRecord is the persisted shape of the live session.
type SessionRecord struct {
	Nodes        []TreeNode `json:"nodes"`
	ActiveNodeID *string    `json:"activeNodeId"`
	SessionID    *string    `json:"sessionId"`

	SessionName    string `json:"sessionName,omitempty"`
	LoadedFromSave bool   `json:"loadedFromSave,omitempty"`
}

// NavigationEvent is what the browser collaborator reports for each article visit.
type NavigationEvent struct {
	ArticleTitle string        `json:"articleTitle"`
	ArticleURL   string        `json:"articleUrl"`
	Context      SourceContext `json:"context"`
}

// NavigationRequest asks the browser collaborator to display an article,
// preferably by reusing an open Wikipedia tab.
type NavigationRequest struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	ReuseTab bool   `json:"reuseTab"`
}

// CloneNodes returns an independent copy of nodes (parent pointers included).
func CloneNodes(nodes []TreeNode) []TreeNode {
	out := make([]TreeNode, len(nodes))
	for i, n := range nodes {
		if n.ParentID != nil {
			pid := *n.ParentID
			n.ParentID = &pid
		}
		out[i] = n
	}
	return out
}

func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func PtrStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// LatestNodeID returns the id of the most recently visited node (first wins
// ties), or "" for an empty tree.
func LatestNodeID(nodes []TreeNode) string {
	id := ""
	var best int64
	for i, n := range nodes {
		if i == 0 || n.Timestamp > best {
			id, best = n.ID, n.Timestamp
		}
	}
	return id
}
