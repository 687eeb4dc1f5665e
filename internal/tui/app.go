package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rabbithole/internal/layout"
	"rabbithole/internal/model"
	"rabbithole/internal/navigate"
	"rabbithole/internal/store"
	"rabbithole/internal/tree"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

type pane int

const (
	paneTree pane = iota
	paneTrees
)

type mode int

const (
	modeNormal mode = iota
	modeRename
	modeConfirmDelete
)

const (
	reloadInterval = 500 * time.Millisecond
	minimapHeight  = 6
	maxSidebar     = 44
)

type reloadTickMsg struct{}

// externalChangeMsg reports a write to the database; closed is set once the
// watcher has stopped.
type externalChangeMsg struct{ closed bool }

type openDoneMsg struct {
	title string
	err   error
}

type treeItem struct {
	tree model.SavedTree
	live bool
}

func (i treeItem) FilterValue() string { return i.tree.Name }

func (i treeItem) Title() string {
	name := strings.TrimSpace(i.tree.Name)
	if name == "" {
		name = "(unnamed)"
	}
	if i.live {
		return name + " •"
	}
	return name
}

func (i treeItem) Description() string {
	noun := "articles"
	if len(i.tree.Nodes) == 1 {
		noun = "article"
	}
	return fmt.Sprintf("%d %s · %s", len(i.tree.Nodes), noun, i.tree.ID)
}

type appModel struct {
	sess    *tree.Session
	cfg     *store.Config
	nav     navigate.Navigator
	changes <-chan struct{}

	width  int
	height int

	pane pane
	mode mode

	snap  model.SessionRecord
	trees list.Model
	input textinput.Model

	status    string
	statusErr bool

	now func() time.Time
}

func newAppModel(sess *tree.Session, opts Options) appModel {
	cfg := opts.Config
	if cfg == nil {
		cfg = &store.Config{}
	}
	m := appModel{
		sess: sess,
		cfg:  cfg,
		nav:     opts.Navigator,
		changes: opts.Changes,
		pane:    paneTree,
		now:     time.Now,
	}
	m.trees = newList()
	m.input = textinput.New()
	m.input.Prompt = "name: "
	m.input.CharLimit = 200
	m.refresh()
	return m
}

func newList() list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Saved trees"
	// The app draws its own footer, keep list chrome minimal.
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetKeys("q")
	l.KeyMap.CursorUp.SetKeys(append(l.KeyMap.CursorUp.Keys(), "ctrl+p")...)
	l.KeyMap.CursorDown.SetKeys(append(l.KeyMap.CursorDown.Keys(), "ctrl+n")...)
	return l
}

func tickReload() tea.Cmd {
	return tea.Tick(reloadInterval, func(time.Time) tea.Msg { return reloadTickMsg{} })
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		_, ok := <-ch
		return externalChangeMsg{closed: !ok}
	}
}

func (m appModel) Init() tea.Cmd { return tea.Batch(tickReload(), waitForChange(m.changes)) }

// reloadExternal picks up writes from the service or another CLI call.
// Local edits still waiting on the auto-save win; the next write brings the
// rest in.
func (m *appModel) reloadExternal() {
	if m.sess.AutoSavePending() {
		m.refresh()
		return
	}
	m.sess.Sync()
	if err := m.sess.Restore(context.Background()); err != nil {
		m.setStatus("reload failed: "+err.Error(), true)
	}
	m.refresh()
}

// refresh re-reads the in-memory session.
func (m *appModel) refresh() {
	m.snap = m.sess.Snapshot()
	liveID := model.PtrStr(m.snap.SessionID)
	saved := m.sess.SavedTrees()
	items := make([]list.Item, 0, len(saved))
	for _, t := range saved {
		items = append(items, treeItem{tree: t, live: t.ID == liveID})
	}
	idx := m.trees.Index()
	m.trees.SetItems(items)
	switch {
	case len(items) == 0:
	case idx >= len(items):
		m.trees.Select(len(items) - 1)
	default:
		m.trees.Select(idx)
	}
}

func (m appModel) selectedTree() (model.SavedTree, bool) {
	it, ok := m.trees.SelectedItem().(treeItem)
	if !ok {
		return model.SavedTree{}, false
	}
	return it.tree, true
}

func (m *appModel) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case reloadTickMsg:
		m.refresh()
		return m, tickReload()
	case externalChangeMsg:
		if msg.closed {
			return m, nil
		}
		m.reloadExternal()
		return m, waitForChange(m.changes)
	case openDoneMsg:
		if msg.err != nil {
			m.setStatus("open failed: "+msg.err.Error(), true)
		} else {
			m.setStatus("opened "+msg.title, false)
		}
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeRename:
			return m.updateRename(msg)
		case modeConfirmDelete:
			return m.updateConfirmDelete(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m appModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab", "shift+tab":
		if m.pane == paneTree {
			m.pane = paneTrees
		} else {
			m.pane = paneTree
		}
		return m, nil
	case "o":
		return m, m.openActive()
	case "x":
		m.sess.ClearTree()
		m.refresh()
		m.setStatus("tree cleared", false)
		return m, nil
	}

	if m.pane == paneTree {
		dirs := map[string]direction{
			"up": dirUp, "k": dirUp,
			"down": dirDown, "j": dirDown,
			"left": dirLeft, "h": dirLeft,
			"right": dirRight, "l": dirRight,
		}
		if d, ok := dirs[msg.String()]; ok {
			cur := model.PtrStr(m.snap.ActiveNodeID)
			if next := step(m.snap.Nodes, cur, d); next != cur {
				m.sess.SetActiveNode(next)
				m.refresh()
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "enter":
		t, ok := m.selectedTree()
		if !ok {
			return m, nil
		}
		var active model.TreeNode
		loaded := m.sess.LoadTree(t.ID, func(n model.TreeNode) { active = n })
		m.refresh()
		switch {
		case !loaded:
			m.setStatus("tree no longer exists", true)
		case active.ID != "":
			m.setStatus(fmt.Sprintf("loaded %q at %s", t.Name, active.Title), false)
		default:
			m.setStatus(fmt.Sprintf("loaded %q", t.Name), false)
		}
		m.pane = paneTree
		return m, nil
	case "r":
		t, ok := m.selectedTree()
		if !ok {
			return m, nil
		}
		m.mode = modeRename
		m.input.SetValue(t.Name)
		m.input.CursorEnd()
		return m, m.input.Focus()
	case "d":
		if _, ok := m.selectedTree(); ok {
			m.mode = modeConfirmDelete
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.trees, cmd = m.trees.Update(msg)
	return m, cmd
}

func (m appModel) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.input.Blur()
		return m, nil
	case "enter":
		m.mode = modeNormal
		m.input.Blur()
		name := strings.TrimSpace(m.input.Value())
		t, ok := m.selectedTree()
		if !ok || name == "" {
			return m, nil
		}
		m.sess.RenameTree(t.ID, name)
		m.refresh()
		m.setStatus(fmt.Sprintf("renamed to %q", name), false)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = modeNormal
	if msg.String() != "y" {
		m.setStatus("delete cancelled", false)
		return m, nil
	}
	t, ok := m.selectedTree()
	if !ok {
		return m, nil
	}
	m.sess.DeleteSavedTree(t.ID)
	m.refresh()
	m.setStatus(fmt.Sprintf("deleted %q", t.Name), false)
	return m, nil
}

func (m appModel) openActive() tea.Cmd {
	n, ok := findNode(m.snap.Nodes, model.PtrStr(m.snap.ActiveNodeID))
	if !ok || m.nav == nil {
		return nil
	}
	nav := m.nav
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := nav.Navigate(ctx, model.NavigationRequest{URL: n.URL, Title: n.Title, ReuseTab: true})
		return openDoneMsg{title: n.Title, err: err}
	}
}

func (m appModel) sidebarWidth() int {
	w := m.width / 3
	if w > maxSidebar {
		w = maxSidebar
	}
	if w < 20 {
		w = 20
	}
	return w
}

func (m *appModel) resize() {
	inner := m.sidebarWidth() - 2
	h := m.bodyHeight() - minimapHeight - 2 - 2 - m.previewHeight()
	if h < 2 {
		h = 2
	}
	m.trees.SetSize(inner, h)
	m.input.Width = m.width - len(m.input.Prompt) - 2
}

func (m appModel) bodyHeight() int {
	// Header and footer take one line each.
	h := m.height - 2
	if h < 4 {
		h = 4
	}
	return h
}

func (m appModel) previewHeight() int {
	h := m.bodyHeight() / 3
	if h < 4 {
		h = 4
	}
	return h
}

func (m appModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	header := m.viewHeader()
	footer := m.viewFooter()

	sideW := m.sidebarWidth()
	mainW := m.width - sideW
	bodyH := m.bodyHeight()

	main := stylePane(m.pane == paneTree).Render(m.viewTree(mainW-2, bodyH-2))
	side := m.viewSidebar(sideW, bodyH)
	body := lipgloss.JoinHorizontal(lipgloss.Top, main, side)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m appModel) viewHeader() string {
	name := strings.TrimSpace(m.snap.SessionName)
	if name == "" {
		name = "(no session)"
	}
	state := "idle"
	if m.snap.SessionID != nil {
		state = "tracking"
	}
	if m.sess.AutoSavePending() {
		state += " · saving…"
	}
	line := fmt.Sprintf("rabbithole · %s · %d nodes · %s", name, len(m.snap.Nodes), state)
	return lipgloss.NewStyle().Bold(true).Render(xansi.Truncate(line, m.width, "…"))
}

func (m appModel) viewFooter() string {
	switch m.mode {
	case modeRename:
		return m.input.View()
	case modeConfirmDelete:
		t, _ := m.selectedTree()
		return styleError().Render(fmt.Sprintf("delete %q? y/n", t.Name))
	}
	if m.status != "" {
		st := styleMuted()
		if m.statusErr {
			st = styleError()
		}
		return st.Render(xansi.Truncate(m.status, m.width, "…"))
	}
	help := "tab pane · arrows move · o open · x clear · q quit"
	if m.pane == paneTrees {
		help = "tab pane · enter load · r rename · d delete · q quit"
	}
	return styleMuted().Render(xansi.Truncate(help, m.width, "…"))
}

func (m appModel) viewTree(w, h int) string {
	if len(m.snap.Nodes) == 0 {
		return fitBlock(styleMuted().Render("Visit a Wikipedia article to start a tree."), w, h)
	}
	opts := m.cfg.LayoutOptions(layout.VariantMain)
	active := model.PtrStr(m.snap.ActiveNodeID)
	res := layout.Compute(m.snap.Nodes, active, opts)
	return renderTree(res, opts.HorizontalSpacing, w, h, active).String()
}

func (m appModel) viewSidebar(w, h int) string {
	inner := w - 2

	var mini string
	if len(m.snap.Nodes) > 0 {
		res := layout.Compute(m.snap.Nodes, model.PtrStr(m.snap.ActiveNodeID), m.cfg.LayoutOptions(layout.VariantMinimap))
		mini = renderMinimap(res, inner, minimapHeight).String()
	}
	miniBox := stylePane(false).Render(fitBlock(mini, inner, minimapHeight))

	prevH := m.previewHeight()
	listH := h - lipgloss.Height(miniBox) - (prevH + 2) - 2
	if listH < 1 {
		listH = 1
	}
	var listBody string
	if len(m.trees.Items()) == 0 {
		listBody = styleMuted().Render("No saved trees yet.")
	} else {
		listBody = m.trees.View()
	}
	listBox := stylePane(m.pane == paneTrees).Render(fitBlock(listBody, inner, listH))

	var card string
	if t, ok := m.selectedTree(); ok {
		card = renderMarkdown(previewMarkdown(t, m.now()), inner)
	}
	cardBox := stylePane(false).Render(fitBlock(card, inner, prevH))

	return lipgloss.JoinVertical(lipgloss.Left, miniBox, listBox, cardBox)
}

// fitBlock clips or pads s to exactly w x h cells.
func fitBlock(s string, w, h int) string {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	lines := strings.Split(s, "\n")
	if len(lines) > h {
		lines = lines[:h]
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	for i, l := range lines {
		l = xansi.Truncate(l, w, "")
		if pad := w - xansi.StringWidth(l); pad > 0 {
			l += strings.Repeat(" ", pad)
		}
		lines[i] = l
	}
	return strings.Join(lines, "\n")
}
