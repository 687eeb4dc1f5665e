package cli

import (
	"errors"
	"strings"

	"rabbithole/internal/model"
	"rabbithole/internal/tree"

	"github.com/spf13/cobra"
)

func newVisitCmd(app *App) *cobra.Command {
	var title, url, sourceCtx, sessionID string

	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Record an article visit (what the extension reports on navigation)",
		Example: strings.TrimSpace(`
rabbithole visit --title "Rabbit" --url https://en.wikipedia.org/wiki/Rabbit --context SESSION_START
rabbithole visit --title "Hare" --url https://en.wikipedia.org/wiki/Hare --context text_selection
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			title = strings.TrimSpace(title)
			if title == "" {
				return writeErr(cmd, errors.New("missing --title"))
			}
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				sess.StartTracking(sessionID)
				id := sess.AddNode(title, strings.TrimSpace(url), model.ParseSourceContext(sourceCtx))
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{
						"nodeId":  id,
						"session": sess.Snapshot(),
					},
				})
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Article title (dedup key)")
	cmd.Flags().StringVar(&url, "url", "", "Article URL")
	cmd.Flags().StringVar(&sourceCtx, "context", string(model.ContextTextSelection), "How the article was reached (SESSION_START|TEXT_SELECTION|MODAL_NAVIGATION|TREE_NAVIGATION)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session id to adopt when no session is live")
	return cmd
}

func newActiveCmd(app *App) *cobra.Command {
	var none bool

	cmd := &cobra.Command{
		Use:   "active [node-id]",
		Short: "Set or clear the active node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			switch {
			case none && len(args) > 0:
				return writeErr(cmd, errors.New("pass a node id or --none, not both"))
			case !none && len(args) == 0:
				return writeErr(cmd, errors.New("missing node id (or --none)"))
			case len(args) == 1:
				id = strings.TrimSpace(args[0])
			}
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				sess.SetActiveNode(id)
				return writeOut(cmd, app, map[string]any{"data": sess.Snapshot()})
			})
		},
	}

	cmd.Flags().BoolVar(&none, "none", false, "Clear the active node")
	return cmd
}

func newClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the live tree (a pending auto-save runs first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				sess.ClearTree()
				return writeOut(cmd, app, map[string]any{"data": sess.Snapshot()})
			})
		},
	}
}

func newStopCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop tracking (the user left Wikipedia)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				sess.StopTracking()
				return writeOut(cmd, app, map[string]any{"data": sess.Snapshot()})
			})
		},
	}
}

func newSessionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the live session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				return writeOut(cmd, app, map[string]any{"data": sess.Snapshot()})
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "name <name>",
		Short: "Set the session name (used as the saved tree name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return writeErr(cmd, errors.New("name is empty"))
			}
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				sess.SetSessionName(name)
				return writeOut(cmd, app, map[string]any{"data": sess.Snapshot()})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "id <session-id>",
		Short: "Adopt a session id (ignored once the session is backed by a saved tree)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, sessionOptions{}, func(sess *tree.Session) error {
				sess.SetSessionID(args[0])
				return writeOut(cmd, app, map[string]any{"data": sess.Snapshot()})
			})
		},
	})
	return cmd
}
