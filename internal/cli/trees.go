package cli

import (
	"errors"
	"strings"

	"rabbithole/internal/model"
	"rabbithole/internal/navigate"
	"rabbithole/internal/publish"
	"rabbithole/internal/store"
	"rabbithole/internal/tree"

	"github.com/spf13/cobra"
)

type treeSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NodeCount int    `json:"nodeCount"`
	CreatedAt int64  `json:"createdAt"`
	Live      bool   `json:"live"`
}

func newTreesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trees",
		Short: "Saved trees",
	}

	cmd.AddCommand(newTreesListCmd(app))
	cmd.AddCommand(newTreesShowCmd(app))
	cmd.AddCommand(newTreesRenameCmd(app))
	cmd.AddCommand(newTreesDeleteCmd(app))
	cmd.AddCommand(newTreesLoadCmd(app))
	cmd.AddCommand(newTreesExportCmd(app))
	cmd.AddCommand(newTreesImportCmd(app))
	cmd.AddCommand(newTreesPublishCmd(app))
	return cmd
}

func newTreesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved trees",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				liveID := model.PtrStr(sess.Snapshot().SessionID)
				saved := sess.SavedTrees()
				out := make([]treeSummary, 0, len(saved))
				for _, t := range saved {
					out = append(out, treeSummary{
						ID:        t.ID,
						Name:      t.Name,
						NodeCount: len(t.Nodes),
						CreatedAt: t.CreatedAt,
						Live:      t.ID == liveID,
					})
				}
				return writeOut(cmd, app, map[string]any{"data": out})
			})
		},
	}
}

func newTreesShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tree-id>",
		Short: "Show a saved tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				t, ok := sess.SavedTree(id)
				if !ok {
					return errNotFound("tree", id)
				}
				return writeOut(cmd, app, map[string]any{"data": t})
			})
		},
	}
}

func newTreesRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <tree-id> <name>",
		Short: "Rename a saved tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			name := strings.TrimSpace(args[1])
			if name == "" {
				return writeErr(cmd, errors.New("name is empty"))
			}
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				if _, ok := sess.SavedTree(id); !ok {
					return errNotFound("tree", id)
				}
				sess.RenameTree(id, name)
				t, _ := sess.SavedTree(id)
				return writeOut(cmd, app, map[string]any{"data": t})
			})
		},
	}
}

func newTreesDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <tree-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved tree (the live tree is left alone)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				_, found := sess.SavedTree(id)
				sess.DeleteSavedTree(id)
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{
						"treeId":  id,
						"deleted": found,
					},
				})
			})
		},
	}
}

func newTreesLoadCmd(app *App) *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "load <tree-id>",
		Short: "Make a saved tree the live session and open its latest article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			opts := sessionOptions{}
			if open {
				opts.navigator = navigate.Browser{}
			}
			return withSession(cmd, app, opts, func(sess *tree.Session) error {
				var onLoaded func(model.TreeNode)
				if !open {
					onLoaded = func(model.TreeNode) {}
				}
				if !sess.LoadTree(id, onLoaded) {
					return errNotFound("tree", id)
				}
				snap := sess.Snapshot()
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{
						"treeId":       id,
						"activeNodeId": snap.ActiveNodeID,
						"opened":       open && snap.ActiveNodeID != nil,
						"session":      snap,
					},
				})
			})
		},
	}

	cmd.Flags().BoolVar(&open, "open", true, "Open the most recently visited article in the browser")
	return cmd
}

func newTreesExportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export <tree-id> <path>",
		Short: "Write a saved tree to a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			path := strings.TrimSpace(args[1])
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				t, ok := sess.SavedTree(id)
				if !ok {
					return errNotFound("tree", id)
				}
				if err := store.ExportTree(path, t); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{
						"treeId": id,
						"path":   path,
						"nodes":  len(t.Nodes),
					},
				})
			})
		},
	}
}

func newTreesImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Add (or replace) a saved tree from a JSON file written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := store.ImportTree(strings.TrimSpace(args[0]))
			if err != nil {
				return writeErr(cmd, err)
			}
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				_, replaced := sess.SavedTree(t.ID)
				sess.ImportTree(t)
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{
						"treeId":   t.ID,
						"name":     t.Name,
						"nodes":    len(t.Nodes),
						"replaced": replaced,
					},
				})
			})
		},
	}
}

func newTreesPublishCmd(app *App) *cobra.Command {
	var to string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "publish <tree-id>",
		Short: "Write a saved tree as a Markdown outline (<to>/trees/<tree-id>.md)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				t, ok := sess.SavedTree(id)
				if !ok {
					return errNotFound("tree", id)
				}
				res, err := publish.WriteTree(t, to, publish.WriteOptions{Overwrite: overwrite})
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": res})
			})
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Output directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}
