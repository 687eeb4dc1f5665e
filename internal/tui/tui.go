// Package tui is the interactive terminal viewer for the live tree and the
// saved-trees collection.
package tui

import (
	"rabbithole/internal/navigate"
	"rabbithole/internal/store"
	"rabbithole/internal/tree"

	tea "github.com/charmbracelet/bubbletea"
)

type Options struct {
	Config    *store.Config
	Navigator navigate.Navigator
	// Changes, when set, triggers a reload from the store on each signal.
	Changes <-chan struct{}
}

func Run(sess *tree.Session, opts Options) error {
	applyThemePreference()
	applyColorProfilePreference()
	m := newAppModel(sess, opts)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
