package tui

import (
	"math"
	"strings"

	"rabbithole/internal/layout"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

type cellKind uint8

const (
	cellBlank cellKind = iota
	cellEdge
	cellEdgePath
	cellNode
	cellNodePath
	cellNodeActive
)

// canvas is a fixed-size character grid. A wide rune occupies two cells; the
// second holds 0 and is skipped when rendering.
type canvas struct {
	w, h  int
	runes [][]rune
	kinds [][]cellKind
}

func newCanvas(w, h int) *canvas {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	c := &canvas{w: w, h: h, runes: make([][]rune, h), kinds: make([][]cellKind, h)}
	for y := 0; y < h; y++ {
		c.runes[y] = []rune(strings.Repeat(" ", w))
		c.kinds[y] = make([]cellKind, w)
	}
	return c
}

func (c *canvas) set(x, y int, r rune, k cellKind) {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return
	}
	c.runes[y][x] = r
	c.kinds[y][x] = k
}

func (c *canvas) get(x, y int) rune {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return 0
	}
	return c.runes[y][x]
}

func (c *canvas) kindAt(x, y int) cellKind {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return cellBlank
	}
	return c.kinds[y][x]
}

func (c *canvas) text(x, y int, s string, k cellKind) {
	for _, r := range s {
		rw := xansi.StringWidth(string(r))
		if rw <= 0 {
			continue
		}
		if rw == 2 && x+1 >= c.w {
			return
		}
		c.set(x, y, r, k)
		if rw == 2 {
			c.set(x+1, y, 0, k)
		}
		x += rw
	}
}

// lines renders the grid. Runs of equal kind share one style call.
func (c *canvas) lines(styled bool) []string {
	out := make([]string, c.h)
	for y := 0; y < c.h; y++ {
		var b strings.Builder
		x := 0
		for x < c.w {
			k := c.kinds[y][x]
			var run strings.Builder
			for x < c.w && c.kinds[y][x] == k {
				if r := c.runes[y][x]; r != 0 {
					run.WriteRune(r)
				}
				x++
			}
			if styled && k != cellBlank {
				b.WriteString(styleFor(k).Render(run.String()))
			} else {
				b.WriteString(run.String())
			}
		}
		out[y] = b.String()
	}
	return out
}

func (c *canvas) String() string { return strings.Join(c.lines(true), "\n") }

func styleFor(k cellKind) lipgloss.Style {
	switch k {
	case cellEdge:
		return styleEdge()
	case cellEdgePath:
		return stylePath()
	case cellNodePath:
		return stylePath().Bold(true)
	case cellNodeActive:
		return styleActive()
	default:
		return styleNode()
	}
}

const (
	// slotCols is the character width of one horizontal spacing unit.
	slotCols = 18
	// rowsPerLevel: label row, junction row, drop row.
	rowsPerLevel = 3
)

type treeGrid struct {
	res     layout.Result
	spacing float64
	focusID string
	path    map[string]bool
}

// activePath returns the active node and its ancestors.
func activePath(res layout.Result) map[string]bool {
	parent := map[string]string{}
	for _, e := range res.Edges {
		parent[e.To] = e.From
	}
	path := map[string]bool{}
	for _, n := range res.Nodes {
		if !n.Active {
			continue
		}
		for id := n.ID; id != "" && !path[id]; id = parent[id] {
			path[id] = true
		}
	}
	return path
}

// renderTree draws a Main-variant layout into a width x height grid, panned so
// that focusID stays in view.
func renderTree(res layout.Result, spacing float64, width, height int, focusID string) *canvas {
	g := treeGrid{res: res, spacing: spacing, focusID: focusID, path: activePath(res)}
	return g.draw(width, height)
}

func (g treeGrid) col(x, minX float64) int {
	return int(math.Round((x-minX)/g.spacing*slotCols)) + slotCols/2
}

func (g treeGrid) draw(width, height int) *canvas {
	c := newCanvas(width, height)
	if len(g.res.Nodes) == 0 || g.spacing <= 0 {
		return c
	}
	b := layout.Bounds(g.res)
	totalW := g.col(b.MaxX, b.MinX) + slotCols/2
	maxDepth := 0
	for _, n := range g.res.Nodes {
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}
	totalH := maxDepth*rowsPerLevel + 1

	focusCol, focusRow := totalW/2, 0
	if n, ok := g.res.Find(g.focusID); ok {
		focusCol, focusRow = g.col(n.X, b.MinX), n.Depth*rowsPerLevel
	}
	offX := pan(totalW, width, focusCol)
	offY := pan(totalH, height, focusRow)

	type pos struct{ col, row int }
	at := make(map[string]pos, len(g.res.Nodes))
	for _, n := range g.res.Nodes {
		at[n.ID] = pos{col: g.col(n.X, b.MinX) + offX, row: n.Depth*rowsPerLevel + offY}
	}

	type junction struct{ left, right, center, path bool }
	type link struct {
		parent, child pos
		kind          cellKind
	}
	links := make([]link, 0, len(g.res.Edges))
	for _, e := range g.res.Edges {
		p, okP := at[e.From]
		ch, okC := at[e.To]
		if !okP || !okC {
			continue
		}
		k := cellEdge
		if g.path[e.To] {
			k = cellEdgePath
		}
		links = append(links, link{parent: p, child: ch, kind: k})
	}

	// Spans first so the corners and drops drawn afterwards are not overwritten.
	for _, l := range links {
		jrow := l.parent.row + 1
		lo, hi := min(l.parent.col, l.child.col), max(l.parent.col, l.child.col)
		for x := lo; x <= hi; x++ {
			if x == l.parent.col {
				continue
			}
			if l.kind == cellEdge && c.kindAt(x, jrow) == cellEdgePath {
				continue
			}
			c.set(x, jrow, '─', l.kind)
		}
	}
	junctions := map[pos]*junction{}
	for _, l := range links {
		p, ch := l.parent, l.child
		jrow := p.row + 1
		switch {
		case ch.col < p.col:
			c.set(ch.col, jrow, '┌', l.kind)
		case ch.col > p.col:
			c.set(ch.col, jrow, '┐', l.kind)
		}
		c.set(ch.col, jrow+1, '│', l.kind)

		key := pos{col: p.col, row: jrow}
		j := junctions[key]
		if j == nil {
			j = &junction{}
			junctions[key] = j
		}
		switch {
		case ch.col < p.col:
			j.left = true
		case ch.col > p.col:
			j.right = true
		default:
			j.center = true
		}
		j.path = j.path || l.kind == cellEdgePath
	}
	for p, j := range junctions {
		k := cellEdge
		if j.path {
			k = cellEdgePath
		}
		c.set(p.col, p.row, junctionGlyph(j.left, j.right, j.center), k)
	}

	for _, n := range g.res.Nodes {
		p := at[n.ID]
		label := "[" + xansi.Truncate(n.Title, slotCols-4, "…") + "]"
		k := cellNode
		switch {
		case n.Active:
			k = cellNodeActive
		case g.path[n.ID]:
			k = cellNodePath
		}
		c.text(p.col-xansi.StringWidth(label)/2, p.row, label, k)
	}
	return c
}

func junctionGlyph(left, right, center bool) rune {
	switch {
	case left && right && center:
		return '┼'
	case left && right:
		return '┴'
	case left && center:
		return '┤'
	case right && center:
		return '├'
	case left:
		return '┘'
	case right:
		return '└'
	default:
		return '│'
	}
}

// pan returns the offset that centers content of size total in view, or, when
// it does not fit, keeps focus near the middle without scrolling past an edge.
func pan(total, view, focus int) int {
	if total <= view {
		return (view - total) / 2
	}
	off := view/2 - focus
	if off > 0 {
		off = 0
	}
	if off < view-total {
		off = view - total
	}
	return off
}

// renderMinimap scales a Minimap-variant layout into a small grid: one dot per
// node, the active node highlighted. Edges are implied by position.
func renderMinimap(res layout.Result, width, height int) *canvas {
	c := newCanvas(width, height)
	if len(res.Nodes) == 0 || width <= 0 || height <= 0 {
		return c
	}
	b := layout.Bounds(res)
	scale := func(v, lo, span float64, cells int) int {
		if span <= 0 || cells <= 1 {
			return (cells - 1) / 2
		}
		return int(math.Round((v - lo) / span * float64(cells-1)))
	}
	path := activePath(res)
	for _, n := range res.Nodes {
		if n.Active {
			continue
		}
		r, k := '·', cellEdge
		if path[n.ID] {
			r, k = '•', cellEdgePath
		}
		c.set(scale(n.X, b.MinX, b.Width(), width), scale(n.Y, b.MinY, b.Height(), height), r, k)
	}
	// Drawn last so it is never hidden by a neighbour in the same cell.
	for _, n := range res.Nodes {
		if n.Active {
			c.set(scale(n.X, b.MinX, b.Width(), width), scale(n.Y, b.MinY, b.Height(), height), '●', cellNodeActive)
		}
	}
	return c
}
