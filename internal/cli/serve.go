package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rabbithole/internal/navigate"
	"rabbithole/internal/observability"
	"rabbithole/internal/store"
	"rabbithole/internal/tree"
	"rabbithole/internal/web"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local service the browser extension talks to",
		Long: strings.TrimSpace(`
Run the HTTP + WebSocket service on localhost.

The extension posts navigation events to /api/navigation (or sends them over
/ws) and receives session updates and "navigate" requests over /ws. When no
extension is connected, loading a saved tree opens the article with the
system browser instead.
`),
		Example: strings.TrimSpace(`
rabbithole serve
rabbithole serve --addr 127.0.0.1:7717 --log-level debug
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := loadConfig(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				listenAddr = cfg.ListenAddr()
			}

			log, err := observability.NewLogger(logLevel(app, cfg, "info"), dev)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = log.Sync() }()

			st := store.Store{Dir: dir}
			if err := st.Ensure(); err != nil {
				return writeErr(cmd, err)
			}

			metrics := observability.NewMetrics()
			hub := web.NewHub(log)
			sess := tree.New(tree.Options{
				Persister:        st,
				Navigator:        navigate.Fallback{hub, navigate.Browser{}},
				AutoSaveDebounce: cfg.AutoSaveDebounce(),
				Logger:           log,
				Hooks: observability.SessionHooks(log, metrics, tree.Hooks{
					OnChange:       hub.SessionChanged,
					OnTreesChanged: hub.TreesChanged,
				}),
			})
			if err := sess.Restore(cmd.Context()); err != nil {
				log.Warn("restore failed, starting empty", zap.String("dir", dir), zap.Error(err))
			}

			srv, err := web.NewServer(web.ServerConfig{
				Session: sess,
				Hub:     hub,
				Config:  cfg,
				Logger:  log,
				Metrics: metrics,
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return writeErr(cmd, err)
			}
			actualAddr := ln.Addr().String()
			url := "http://" + actualAddr + "/"

			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"addr":      actualAddr,
					"url":       url,
					"ws":        "ws://" + actualAddr + "/ws",
					"dir":       dir,
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "rabbithole serving at %s (dir=%s)\n", url, dir)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveUntilDone(ctx, ln, srv.Handler(), hub, sess, log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("RABBITHOLE_ADDR", ""), "Bind address (host:port or :port; default from config or "+store.DefaultAddr+")")
	cmd.Flags().BoolVar(&dev, "dev", false, "Human-readable console logs")
	return cmd
}

// serveUntilDone serves until ctx is cancelled or the listener fails, then
// drains HTTP, disconnects clients and persists the session.
func serveUntilDone(ctx context.Context, ln net.Listener, h http.Handler, hub *web.Hub, sess *tree.Session, log *zap.Logger) error {
	httpSrv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := sess.Close(shutdownCtx); err != nil {
		log.Warn("persist on shutdown", zap.Error(err))
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
