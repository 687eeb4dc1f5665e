package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"rabbithole/internal/format"
	"rabbithole/internal/navigate"
	"rabbithole/internal/observability"
	"rabbithole/internal/store"
	"rabbithole/internal/tree"
	"rabbithole/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type App struct {
	Dir        string
	PrettyJSON bool
	Format     string
	LogLevel   string

	cfg *store.Config
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "rabbithole",
		Short:        "Track how you wander through Wikipedia as a tree",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Browse the live tree and saved trees
  rabbithole view

  # Run the local service the browser extension talks to
  rabbithole serve

  # Record a visit by hand
  rabbithole visit --title "Rabbit" --url https://en.wikipedia.org/wiki/Rabbit --context SESSION_START

  # Direct tree lookup (shortcut for: rabbithole trees show <tree-id>)
  rabbithole tree-3f2a9c1e
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive viewer.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runView(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, err := format.Parse(app.Format); err != nil {
			return writeErr(cmd, err)
		}
		if _, err := observability.ParseLevel(app.LogLevel); err != nil {
			return writeErr(cmd, err)
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("RABBITHOLE_DIR", ""), "Path to the data dir (default: ~/.rabbithole/data)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("RABBITHOLE_FORMAT", "json"), "Output format (json|edn)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("RABBITHOLE_LOG_LEVEL", ""), "Log level (debug|info|warn|error)")

	cmd.AddCommand(newVisitCmd(app))
	cmd.AddCommand(newActiveCmd(app))
	cmd.AddCommand(newClearCmd(app))
	cmd.AddCommand(newStopCmd(app))
	cmd.AddCommand(newSessionCmd(app))
	cmd.AddCommand(newLayoutCmd(app))
	cmd.AddCommand(newTreesCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newViewCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

func resolveDir(app *App) (string, error) {
	if app.Dir != "" {
		return app.Dir, nil
	}
	d, err := store.DefaultDir()
	if err != nil {
		return "", err
	}
	app.Dir = d
	return d, nil
}

func loadConfig(app *App) (*store.Config, error) {
	if app.cfg != nil {
		return app.cfg, nil
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app.cfg = cfg
	return cfg, nil
}

// logLevel picks the flag, then the config file, then fallback.
func logLevel(app *App, cfg *store.Config, fallback string) string {
	if app.LogLevel != "" {
		return app.LogLevel
	}
	if cfg != nil && strings.TrimSpace(cfg.LogLevel) != "" {
		return cfg.LogLevel
	}
	return fallback
}

const viewWatchDebounce = 150 * time.Millisecond

type sessionOptions struct {
	navigator tree.Navigator
}

// openSession restores the persisted session for a one-shot command. The
// returned closer flushes the pending auto-save and waits for the writes.
func openSession(cmd *cobra.Command, app *App, opts sessionOptions) (*tree.Session, func() error, error) {
	dir, err := resolveDir(app)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(app)
	if err != nil {
		return nil, nil, err
	}
	st := store.Store{Dir: dir}
	if err := st.Ensure(); err != nil {
		return nil, nil, err
	}

	log, err := observability.NewLogger(logLevel(app, cfg, "warn"), true)
	if err != nil {
		return nil, nil, err
	}
	sess := tree.New(tree.Options{
		Persister:        st,
		Navigator:        opts.navigator,
		AutoSaveDebounce: cfg.AutoSaveDebounce(),
		Logger:           log,
		Hooks:            observability.SessionHooks(log, nil, tree.Hooks{}),
	})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := sess.Restore(ctx); err != nil {
		// A corrupt record must not lock the user out; start empty.
		log.Warn("restore failed, starting empty", zap.String("dir", dir), zap.Error(err))
	}
	closer := func() error {
		defer func() { _ = log.Sync() }()
		return sess.Close(ctx)
	}
	return sess, closer, nil
}

// withSession runs fn against the restored session and persists the result.
func withSession(cmd *cobra.Command, app *App, opts sessionOptions, fn func(*tree.Session) error) error {
	sess, closeSess, err := openSession(cmd, app, opts)
	if err != nil {
		return writeErr(cmd, err)
	}
	runErr := fn(sess)
	if err := closeSess(); err != nil && runErr == nil {
		return writeErr(cmd, fmt.Errorf("persist: %w", err))
	}
	if runErr != nil {
		return writeErr(cmd, runErr)
	}
	return nil
}

func runView(cmd *cobra.Command, app *App) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return writeErr(cmd, err)
	}
	dir, err := resolveDir(app)
	if err != nil {
		return writeErr(cmd, err)
	}
	return withSession(cmd, app, sessionOptions{navigator: navigate.Browser{}}, func(sess *tree.Session) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		opts := tui.Options{Config: cfg, Navigator: navigate.Browser{}}
		// Without a watcher the viewer still works; it just misses writes from
		// the service until restarted.
		if changes, err := (store.Store{Dir: dir}).Watch(ctx, viewWatchDebounce); err == nil {
			opts.Changes = changes
		}
		return tui.Run(sess, opts)
	})
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
