package cli

import (
	"strings"

	"rabbithole/internal/layout"
	"rabbithole/internal/model"
	"rabbithole/internal/tree"

	"github.com/spf13/cobra"
)

func newLayoutCmd(app *App) *cobra.Command {
	var variant, saved string
	var h, v float64

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Compute node coordinates for the live tree or a saved tree",
		Long: strings.TrimSpace(`
Lay out the live tree (or a saved tree with --saved) and print node
positions and edges in abstract layout units.

Saved trees default to the preview variant with their most recently visited
article marked active.
`),
		Example: strings.TrimSpace(`
rabbithole layout
rabbithole layout --variant minimap
rabbithole layout --saved tree-3f2a9c1e --h-spacing 100
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				var nodes []model.TreeNode
				var activeID string
				fallback := layout.VariantMain
				if id := strings.TrimSpace(saved); id != "" {
					t, ok := sess.SavedTree(id)
					if !ok {
						return errNotFound("tree", id)
					}
					nodes, activeID = t.Nodes, model.LatestNodeID(t.Nodes)
					fallback = layout.VariantPreview
				} else {
					snap := sess.Snapshot()
					nodes, activeID = snap.Nodes, model.PtrStr(snap.ActiveNodeID)
				}

				vr := fallback
				if cmd.Flags().Changed("variant") {
					parsed, err := layout.ParseVariant(variant)
					if err != nil {
						return err
					}
					vr = parsed
				}
				opts := cfg.LayoutOptions(vr)
				if h > 0 {
					opts.HorizontalSpacing = h
				}
				if v > 0 {
					opts.VerticalSpacing = v
				}
				res := layout.Compute(nodes, activeID, opts)
				return writeOut(cmd, app, map[string]any{"data": layout.NewScene(res, opts)})
			})
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "main", "Layout variant (main|minimap|preview)")
	cmd.Flags().StringVar(&saved, "saved", "", "Lay out this saved tree instead of the live one")
	cmd.Flags().Float64Var(&h, "h-spacing", 0, "Horizontal spacing override")
	cmd.Flags().Float64Var(&v, "v-spacing", 0, "Vertical spacing override")
	return cmd
}
