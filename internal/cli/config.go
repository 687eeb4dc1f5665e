package cli

import (
	"rabbithole/internal/layout"
	"rabbithole/internal/store"
	"rabbithole/internal/tree"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			path, err := store.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			dir, err := resolveDir(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			layouts := map[string]layout.Options{}
			for _, v := range []layout.Variant{layout.VariantMain, layout.VariantMinimap, layout.VariantPreview} {
				layouts[string(v)] = cfg.LayoutOptions(v)
			}
			debounce := cfg.AutoSaveDebounce()
			if debounce <= 0 {
				debounce = tree.DefaultAutoSaveDebounce
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"path":               path,
					"dir":                dir,
					"addr":               cfg.ListenAddr(),
					"logLevel":           logLevel(app, cfg, "info"),
					"autoSaveDebounceMs": debounce.Milliseconds(),
					"layout":             layouts,
					"file":               cfg,
				},
			})
		},
	})
	return cmd
}
