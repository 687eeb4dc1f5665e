package publish

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"rabbithole/internal/model"
)

// RenderTreeMarkdown renders a saved tree as a Markdown outline: a meta
// block, then every article as a nested link list in visit order.
func RenderTreeMarkdown(t model.SavedTree) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	name := strings.TrimSpace(t.Name)
	if name == "" {
		name = t.ID
	}
	writeLn("# " + escape(name))
	writeLn("")
	writeLn("## Meta")
	writeLn("")
	writeLn("- ID: " + t.ID)
	writeLn("- Articles: " + strconv.Itoa(len(t.Nodes)))
	if t.CreatedAt > 0 {
		writeLn("- Saved: " + time.UnixMilli(t.CreatedAt).UTC().Format(time.RFC3339))
	}

	if len(t.Nodes) == 0 {
		return buf.String()
	}

	kids := map[string][]model.TreeNode{}
	present := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		present[n.ID] = true
	}
	var roots []model.TreeNode
	for _, n := range t.Nodes {
		if n.IsRoot() || !present[n.Parent()] {
			roots = append(roots, n)
			continue
		}
		kids[n.Parent()] = append(kids[n.Parent()], n)
	}

	writeLn("")
	writeLn("## Articles")
	writeLn("")
	seen := map[string]bool{}
	var walk func(n model.TreeNode, depth int)
	walk = func(n model.TreeNode, depth int) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		writeLn(strings.Repeat("  ", depth) + "- " + link(n))
		for _, c := range kids[n.ID] {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return buf.String()
}

func link(n model.TreeNode) string {
	title := escape(n.Title)
	if strings.TrimSpace(n.URL) == "" {
		return title
	}
	return "[" + title + "](" + n.URL + ")"
}

var mdEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`, "`", "\\`")

func escape(s string) string { return mdEscaper.Replace(strings.TrimSpace(s)) }
