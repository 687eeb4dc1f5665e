package tui

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"rabbithole/internal/model"

	"github.com/charmbracelet/glamour"
)

var (
	mdRendererMu sync.Mutex
	// Keyed by style and wrap width. A fixed style avoids the terminal
	// queries WithAutoStyle makes, which can block.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}
	style := markdownStyle()
	key := style + ":" + strconv.Itoa(width)

	mdRendererMu.Lock()
	r := mdRenderers[key]
	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			mdRendererMu.Unlock()
			return md
		}
		mdRenderers[key] = rr
		r = rr
	}
	mdRendererMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// previewMarkdown describes a saved tree for the hover card: name, size, save
// time, and the path from the root to the most recently visited article.
func previewMarkdown(t model.SavedTree, now time.Time) string {
	var b strings.Builder
	name := strings.TrimSpace(t.Name)
	if name == "" {
		name = t.ID
	}
	fmt.Fprintf(&b, "## %s\n\n", escapeMD(name))

	noun := "articles"
	if len(t.Nodes) == 1 {
		noun = "article"
	}
	fmt.Fprintf(&b, "*%d %s, saved %s*\n\n", len(t.Nodes), noun, relativeTime(t.CreatedAt, now))

	path := latestPath(t.Nodes)
	if len(path) == 0 {
		b.WriteString("_empty tree_\n")
		return b.String()
	}
	for i, n := range path {
		title := escapeMD(n.Title)
		if n.URL != "" {
			title = "[" + title + "](" + n.URL + ")"
		}
		fmt.Fprintf(&b, "%s- %s\n", strings.Repeat("  ", i), title)
	}
	return b.String()
}

// latestPath returns root..latest where latest is the most recently visited node.
func latestPath(nodes []model.TreeNode) []model.TreeNode {
	latest := model.LatestNodeID(nodes)
	if latest == "" {
		return nil
	}
	byID := make(map[string]model.TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	var rev []model.TreeNode
	seen := map[string]bool{}
	for cur, ok := byID[latest]; ok && !seen[cur.ID]; cur, ok = byID[cur.Parent()] {
		seen[cur.ID] = true
		rev = append(rev, cur)
	}
	out := make([]model.TreeNode, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}

func relativeTime(unixMs int64, now time.Time) string {
	if unixMs <= 0 {
		return "never"
	}
	d := now.Sub(time.UnixMilli(unixMs))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return time.UnixMilli(unixMs).Local().Format("2006-01-02")
	}
}

var mdEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`, "`", "\\`")

func escapeMD(s string) string { return mdEscaper.Replace(s) }
