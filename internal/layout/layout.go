// Package layout assigns 2D coordinates to a visited-article tree.
//
// Compute is the single layout implementation shared by the main tree view,
// the minimap and the read-only preview card; the variants differ only in
// spacing presets, node box sizes and how the active path is flagged on edges.
//
// Coordinates are abstract layout units, not pixels. Callers scale and pan.
package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"rabbithole/internal/model"
)

type Variant string

const (
	VariantMain    Variant = "main"
	VariantMinimap Variant = "minimap"
	VariantPreview Variant = "preview"
)

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "main", "tree":
		return VariantMain, nil
	case "minimap", "mini":
		return VariantMinimap, nil
	case "preview", "card":
		return VariantPreview, nil
	default:
		return "", fmt.Errorf("unknown layout variant: %q (expected main|minimap|preview)", s)
	}
}

type Options struct {
	HorizontalSpacing float64 `json:"horizontalSpacing"`
	VerticalSpacing   float64 `json:"verticalSpacing"`
	Variant           Variant `json:"variant"`
}

// Preset is the spacing plus the visual node box used by a presentation variant.
type Preset struct {
	Options
	NodeWidth  float64 `json:"nodeWidth"`
	NodeHeight float64 `json:"nodeHeight"`
}

func PresetFor(v Variant) Preset {
	switch v {
	case VariantMinimap:
		return Preset{Options: Options{HorizontalSpacing: 48, VerticalSpacing: 28, Variant: VariantMinimap}, NodeWidth: 36, NodeHeight: 12}
	case VariantPreview:
		return Preset{Options: Options{HorizontalSpacing: 120, VerticalSpacing: 70, Variant: VariantPreview}, NodeWidth: 100, NodeHeight: 30}
	default:
		return Preset{Options: Options{HorizontalSpacing: 240, VerticalSpacing: 120, Variant: VariantMain}, NodeWidth: 200, NodeHeight: 60}
	}
}

// WithDefaults replaces spacing that is not a positive finite number with
// the variant preset.
func (o Options) WithDefaults() Options {
	if o.Variant == "" {
		o.Variant = VariantMain
	}
	p := PresetFor(o.Variant)
	if !usableSpacing(o.HorizontalSpacing) {
		o.HorizontalSpacing = p.HorizontalSpacing
	}
	if !usableSpacing(o.VerticalSpacing) {
		o.VerticalSpacing = p.VerticalSpacing
	}
	return o
}

func usableSpacing(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}

type PositionedNode struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Depth  int     `json:"depth"`
	Active bool    `json:"active"`
	Root   bool    `json:"root"`
}

type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Active bool    `json:"active"`
}

type Result struct {
	Nodes []PositionedNode `json:"nodes"`
	Edges []Edge           `json:"edges"`
}

func empty() Result {
	return Result{Nodes: []PositionedNode{}, Edges: []Edge{}}
}

// Compute lays out nodes. It has no side effects and no hidden state; the
// same input always yields the same coordinates.
//
// The first node with a nil parent is the root. Nodes that cannot be reached
// from it (only possible when the input breaks the tree invariants) are left out.
func Compute(nodes []model.TreeNode, activeID string, opts Options) Result {
	opts = opts.WithDefaults()
	h := opts.HorizontalSpacing
	v := opts.VerticalSpacing

	root := -1
	for i := range nodes {
		if nodes[i].ParentID == nil {
			root = i
			break
		}
	}
	if root < 0 {
		return empty()
	}

	// parent id -> child indexes, in input order.
	byParent := map[string][]int{}
	for i, n := range nodes {
		if n.ParentID == nil {
			continue
		}
		byParent[*n.ParentID] = append(byParent[*n.ParentID], i)
	}

	// Reachable tree, guarded against duplicate ids and self-references.
	kids := make([][]int, len(nodes))
	depth := make([]int, len(nodes))
	seen := make([]bool, len(nodes))
	seen[root] = true
	var build func(i int)
	build = func(i int) {
		for _, c := range byParent[nodes[i].ID] {
			if seen[c] {
				continue
			}
			seen[c] = true
			depth[c] = depth[i] + 1
			kids[i] = append(kids[i], c)
			build(c)
		}
	}
	build(root)

	width := make([]int, len(nodes))
	var measure func(i int) int
	measure = func(i int) int {
		if len(kids[i]) == 0 {
			width[i] = 1
			return 1
		}
		w := 0
		for _, c := range kids[i] {
			w += measure(c)
		}
		width[i] = w
		return w
	}
	measure(root)

	x := make([]float64, len(nodes))
	y := make([]float64, len(nodes))
	cursor := -float64(width[root]-1) * h / 2
	var place func(i int)
	place = func(i int) {
		y[i] = float64(depth[i]) * v
		if len(kids[i]) == 0 {
			x[i] = cursor
			cursor += h
		} else {
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, c := range kids[i] {
				place(c)
				lo = math.Min(lo, x[c])
				hi = math.Max(hi, x[c])
			}
			x[i] = (lo + hi) / 2
		}
		if i == root {
			x[i] = 0
		}
	}
	place(root)

	resolveOverlaps(seen, x, y, h, v)

	activeEither := opts.Variant == VariantMinimap
	out := Result{
		Nodes: make([]PositionedNode, 0, len(nodes)),
		Edges: make([]Edge, 0, len(nodes)),
	}
	index := map[string]int{}
	for i, n := range nodes {
		if !seen[i] {
			continue
		}
		if _, dup := index[n.ID]; !dup {
			index[n.ID] = i
		}
		out.Nodes = append(out.Nodes, PositionedNode{
			ID:     n.ID,
			Title:  n.Title,
			URL:    n.URL,
			X:      x[i],
			Y:      y[i],
			Depth:  depth[i],
			Active: activeID != "" && n.ID == activeID,
			Root:   i == root,
		})
	}
	for i, n := range nodes {
		if !seen[i] || i == root {
			continue
		}
		p := index[*n.ParentID]
		active := activeID != "" && n.ID == activeID
		if activeEither && activeID != "" && *n.ParentID == activeID {
			active = true
		}
		out.Edges = append(out.Edges, Edge{
			From:   *n.ParentID,
			To:     n.ID,
			X1:     x[p],
			Y1:     y[p],
			X2:     x[i],
			Y2:     y[i],
			Active: active,
		})
	}
	return out
}

// resolveOverlaps is a single forward sweep: each node (ordered by y, then x)
// is pushed one horizontal spacing away from every earlier node in the same
// depth band that sits closer than that spacing. Corrections are not re-checked,
// so very dense trees can keep some overlaps.
func resolveOverlaps(placed []bool, x, y []float64, h, v float64) {
	order := make([]int, 0, len(x))
	for i := range x {
		if placed[i] {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if y[ia] != y[ib] {
			return y[ia] < y[ib]
		}
		return x[ia] < x[ib]
	})
	for a := 1; a < len(order); a++ {
		i := order[a]
		for b := 0; b < a; b++ {
			j := order[b]
			if math.Abs(y[i]-y[j]) >= v/2 || math.Abs(x[i]-x[j]) >= h {
				continue
			}
			if x[i] > x[j] {
				x[i] += h
			} else {
				x[i] -= h
			}
		}
	}
}

// Box is an axis-aligned bounding box in layout units.
type Box struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

func (b Box) Width() float64  { return b.MaxX - b.MinX }
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Bounds returns the box spanned by node centers. An empty result has a zero box.
func Bounds(r Result) Box {
	if len(r.Nodes) == 0 {
		return Box{}
	}
	b := Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, n := range r.Nodes {
		b.MinX = math.Min(b.MinX, n.X)
		b.MaxX = math.Max(b.MaxX, n.X)
		b.MinY = math.Min(b.MinY, n.Y)
		b.MaxY = math.Max(b.MaxY, n.Y)
	}
	return b
}

// Find returns the positioned node with id.
func (r Result) Find(id string) (PositionedNode, bool) {
	for _, n := range r.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return PositionedNode{}, false
}

// Scene is a Result with the options and bounds that produced it, the shape
// handed to clients that scale and pan the drawing themselves.
type Scene struct {
	Variant Variant          `json:"variant"`
	Options Options          `json:"options"`
	Bounds  Box              `json:"bounds"`
	Nodes   []PositionedNode `json:"nodes"`
	Edges   []Edge           `json:"edges"`
}

func NewScene(res Result, opts Options) Scene {
	return Scene{
		Variant: opts.Variant,
		Options: opts,
		Bounds:  Bounds(res),
		Nodes:   res.Nodes,
		Edges:   res.Edges,
	}
}
