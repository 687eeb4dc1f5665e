// Package tree owns the live exploration session: the visited-article tree,
// the active-node pointer, the saved-trees collection and the auto-save policy.
//
// A Session is the single source of truth. Every operation updates memory
// synchronously; persistence and outbound navigation happen afterwards on
// background goroutines and never fail the operation.
package tree

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"rabbithole/internal/ident"
	"rabbithole/internal/model"

	"go.uber.org/zap"
)

// Storage keys used for persistence writes and error reporting.
const (
	KeySession    = "rabbitHoleSession"
	KeySavedTrees = "savedTrees"
)

// Persister is the durable key-value collaborator.
type Persister interface {
	LoadSession(ctx context.Context) (model.SessionRecord, error)
	SaveSession(ctx context.Context, rec model.SessionRecord) error
	LoadSavedTrees(ctx context.Context) ([]model.SavedTree, error)
	SaveSavedTrees(ctx context.Context, trees []model.SavedTree) error
}

// Navigator displays an article in the browser.
type Navigator interface {
	Navigate(ctx context.Context, req model.NavigationRequest) error
}

// Hooks are invoked after the session lock is released, in mutation order.
// OnPersistError and OnNavigateError run on background goroutines.
type Hooks struct {
	OnChange        func(rec model.SessionRecord)
	OnNodeAdded     func(n model.TreeNode)
	OnReactivated   func(n model.TreeNode)
	OnAutoSave      func(t model.SavedTree, created bool)
	OnTreesChanged  func(trees []model.SavedTree)
	OnPersistError  func(key string, err error)
	OnNavigateError func(req model.NavigationRequest, err error)
}

type Options struct {
	Persister        Persister
	Navigator        Navigator
	Clock            ident.Clock
	IDs              ident.Generator
	AutoSaveDebounce time.Duration
	Logger           *zap.Logger
	Hooks            Hooks
}

type Session struct {
	mu sync.Mutex

	nodes          []model.TreeNode
	activeID       string
	sessionID      string
	name           string
	loadedFromSave bool
	// lockedID is the saved tree backing this session; once set the session
	// id can no longer be reassigned.
	lockedID string
	saved    []model.SavedTree

	persister Persister
	navigator Navigator
	clock     ident.Clock
	ids       ident.Generator
	log       *zap.Logger
	hooks     Hooks

	writer   *writer
	autosave *autoSaver
	navWG    sync.WaitGroup

	// Hook calls collected under the lock, fired by unlock.
	events []func()
}

func New(opts Options) *Session {
	s := &Session{
		persister: opts.Persister,
		navigator: opts.Navigator,
		clock:     opts.Clock,
		ids:       opts.IDs,
		log:       opts.Logger,
		hooks:     opts.Hooks,
		saved:     []model.SavedTree{},
	}
	if s.clock == nil {
		s.clock = ident.NewMonotonicClock()
	}
	if s.ids == nil {
		s.ids = ident.NewGenerator()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.writer = newWriter(s.persistFailed)
	s.autosave = newAutoSaver(opts.AutoSaveDebounce, s.runAutoSave)
	return s
}

func (s *Session) lock() { s.mu.Lock() }

func (s *Session) unlock() {
	events := s.events
	s.events = nil
	s.mu.Unlock()
	for _, fn := range events {
		fn()
	}
}

func (s *Session) emit(fn func()) {
	if fn != nil {
		s.events = append(s.events, fn)
	}
}

func (s *Session) persistFailed(key string, err error) {
	if s.hooks.OnPersistError != nil {
		s.hooks.OnPersistError(key, err)
		return
	}
	s.log.Warn("persist failed", zap.String("key", key), zap.Error(err))
}

// Restore loads the persisted live session and saved trees. On error the
// in-memory state is left as it was; callers typically log and continue.
func (s *Session) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	rec, err := s.persister.LoadSession(ctx)
	if err != nil {
		return err
	}
	trees, err := s.persister.LoadSavedTrees(ctx)
	if err != nil {
		return err
	}

	s.lock()
	defer s.unlock()
	s.nodes = model.CloneNodes(rec.Nodes)
	s.activeID = model.PtrStr(rec.ActiveNodeID)
	s.sessionID = model.PtrStr(rec.SessionID)
	s.name = rec.SessionName
	s.loadedFromSave = rec.LoadedFromSave
	s.saved = cloneTrees(trees)
	s.lockedID = ""
	if s.sessionID != "" && s.savedIndexLocked(s.sessionID) >= 0 {
		s.lockedID = s.sessionID
	}
	if mc, ok := s.clock.(interface{ Observe(int64) }); ok {
		for _, n := range s.nodes {
			mc.Observe(n.Timestamp)
		}
	}
	return nil
}

// StartTracking begins a session if none is live and returns the session id.
func (s *Session) StartTracking(sessionID string) string {
	s.lock()
	defer s.unlock()
	if s.sessionID != "" {
		return s.sessionID
	}
	s.sessionID = strings.TrimSpace(sessionID)
	if s.sessionID == "" {
		s.sessionID = s.ids.SessionID()
	}
	s.sessionChangedLocked()
	return s.sessionID
}

// AddNode records a visit to an article and returns the id of the node that
// is now active: an existing node with the same title, or a new one.
func (s *Session) AddNode(title, url string, ctx model.SourceContext) string {
	s.lock()
	defer s.unlock()

	if i := s.indexByTitleLocked(title); i >= 0 {
		n := s.nodes[i]
		s.activeID = n.ID
		s.emit(func() { callNode(s.hooks.OnReactivated, n) })
		s.treeChangedLocked()
		return n.ID
	}

	parent := ResolveParent(ctx, s.activeID)
	if parent != "" && s.indexByIDLocked(parent) < 0 {
		parent = ""
	}
	if parent == "" && len(s.nodes) > 0 {
		if ctx == model.ContextSessionStart && !s.loadedFromSave {
			s.restartLocked()
		} else {
			parent = s.anchorLocked()
		}
	}
	if s.sessionID == "" {
		s.sessionID = s.ids.SessionID()
	}

	n := model.TreeNode{
		ID:        s.newNodeIDLocked(),
		Title:     title,
		URL:       url,
		ParentID:  model.StrPtr(parent),
		Timestamp: s.clock.Now(),
	}
	s.nodes = append(s.nodes, n)
	if parent == "" && strings.TrimSpace(s.name) == "" {
		s.name = title
	}
	s.activeID = n.ID
	s.emit(func() { callNode(s.hooks.OnNodeAdded, n) })
	s.treeChangedLocked()
	return n.ID
}

// restartLocked ends the current tree so a new root can be planted. The
// pending auto-save of the old tree runs first so it is not lost.
func (s *Session) restartLocked() {
	if s.autosave.Cancel() {
		s.autoSaveLocked()
	}
	s.resetLocked()
	s.sessionID = s.ids.SessionID()
}

// anchorLocked is where a parentless node attaches on a non-empty tree:
// the active node when it exists, otherwise the root.
func (s *Session) anchorLocked() string {
	if s.activeID != "" && s.indexByIDLocked(s.activeID) >= 0 {
		return s.activeID
	}
	for _, n := range s.nodes {
		if n.ParentID == nil {
			return n.ID
		}
	}
	return ""
}

func (s *Session) newNodeIDLocked() string {
	for i := 0; i < 16; i++ {
		id := s.ids.NodeID()
		if s.indexByIDLocked(id) < 0 {
			return id
		}
	}
	// The generator keeps colliding (only plausible with a fake); derive a fresh suffix.
	base := s.ids.NodeID()
	for i := 2; ; i++ {
		id := base + "-" + strconv.Itoa(i)
		if s.indexByIDLocked(id) < 0 {
			return id
		}
	}
}

// SetActiveNode moves the active pointer. "" clears it. The id is not validated.
func (s *Session) SetActiveNode(id string) {
	s.lock()
	defer s.unlock()
	if s.activeID == id {
		return
	}
	s.activeID = id
	s.treeChangedLocked()
}

// ClearTree empties the live session. A pending auto-save runs first.
func (s *Session) ClearTree() {
	if s.autosave.Cancel() {
		s.runAutoSave()
	}
	s.lock()
	defer s.unlock()
	if len(s.nodes) == 0 && s.activeID == "" && s.sessionID == "" && s.name == "" && !s.loadedFromSave {
		return
	}
	s.resetLocked()
	s.sessionChangedLocked()
}

// StopTracking is called when the user leaves Wikipedia or the tracked tab closes.
func (s *Session) StopTracking() { s.ClearTree() }

func (s *Session) resetLocked() {
	s.nodes = nil
	s.activeID = ""
	s.sessionID = ""
	s.name = ""
	s.loadedFromSave = false
	s.lockedID = ""
}

// SetSessionID adopts an identifier reported by the navigation layer. Once
// the session is backed by a saved tree, other ids are ignored.
func (s *Session) SetSessionID(id string) {
	s.lock()
	defer s.unlock()
	id = strings.TrimSpace(id)
	if s.lockedID != "" && id != s.lockedID {
		s.log.Debug("ignoring session id change on saved session",
			zap.String("locked", s.lockedID), zap.String("requested", id))
		return
	}
	if s.sessionID == id {
		return
	}
	s.sessionID = id
	s.sessionChangedLocked()
	s.autosave.Notify()
}

func (s *Session) SetSessionName(name string) {
	s.lock()
	defer s.unlock()
	if s.name == name {
		return
	}
	s.name = name
	s.sessionChangedLocked()
	s.autosave.Notify()
}

// RenameTree renames a saved tree. Unknown ids are ignored.
func (s *Session) RenameTree(treeID, name string) {
	s.lock()
	defer s.unlock()
	i := s.savedIndexLocked(treeID)
	if i < 0 {
		return
	}
	s.saved[i].Name = name
	if s.lockedID == treeID && s.name != name {
		s.name = name
		s.sessionChangedLocked()
	}
	s.treesChangedLocked()
}

// DeleteSavedTree removes a saved tree. Unknown ids are ignored. A live
// session backed by the tree keeps its id and re-saves on its next change.
func (s *Session) DeleteSavedTree(treeID string) {
	s.lock()
	defer s.unlock()
	i := s.savedIndexLocked(treeID)
	if i < 0 {
		return
	}
	s.saved = append(s.saved[:i:i], s.saved[i+1:]...)
	s.treesChangedLocked()
}

// LoadTree replaces the live session with a saved tree and activates its most
// recently visited node. onLoaded receives that node once the state is applied;
// without onLoaded the Navigator is asked to show the article instead. A saved
// tree with no nodes is loaded but has no node to report, so neither runs.
// Unknown ids change nothing and report false.
func (s *Session) LoadTree(treeID string, onLoaded func(model.TreeNode)) bool {
	s.lock()
	if s.savedIndexLocked(treeID) < 0 {
		s.unlock()
		return false
	}
	// The outgoing tree's pending save runs before it is replaced.
	if s.autosave.Cancel() {
		s.autoSaveLocked()
	}
	i := s.savedIndexLocked(treeID)
	t := s.saved[i]
	s.nodes = model.CloneNodes(t.Nodes)
	s.sessionID = t.ID
	s.lockedID = t.ID
	s.name = t.Name
	s.loadedFromSave = true

	var active model.TreeNode
	found := false
	for _, n := range s.nodes {
		if !found || n.Timestamp > active.Timestamp {
			active = n
			found = true
		}
	}
	s.activeID = ""
	if found {
		s.activeID = active.ID
	}
	if mc, ok := s.clock.(interface{ Observe(int64) }); ok && found {
		mc.Observe(active.Timestamp)
	}
	s.sessionChangedLocked()
	s.unlock()

	if !found {
		return true
	}
	if onLoaded != nil {
		onLoaded(active)
		return true
	}
	s.navigate(model.NavigationRequest{URL: active.URL, Title: active.Title, ReuseTab: true})
	return true
}

func (s *Session) navigate(req model.NavigationRequest) {
	if s.navigator == nil {
		return
	}
	s.navWG.Add(1)
	go func() {
		defer s.navWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.navigator.Navigate(ctx, req); err != nil {
			if s.hooks.OnNavigateError != nil {
				s.hooks.OnNavigateError(req, err)
				return
			}
			s.log.Warn("navigation request failed", zap.String("url", req.URL), zap.Error(err))
		}
	}()
}

func (s *Session) runAutoSave() {
	s.lock()
	defer s.unlock()
	s.autoSaveLocked()
}

// autoSaveLocked upserts the live session into the saved collection and locks
// the session id to the saved tree.
func (s *Session) autoSaveLocked() {
	if len(s.nodes) == 0 || s.sessionID == "" || strings.TrimSpace(s.name) == "" {
		return
	}
	id := savedTreeID(s.sessionID)
	t := model.SavedTree{
		ID:        id,
		Name:      s.name,
		Nodes:     model.CloneNodes(s.nodes),
		CreatedAt: s.clock.Now(),
	}
	created := false
	if i := s.savedIndexLocked(id); i >= 0 {
		s.saved[i] = t
	} else {
		s.saved = append(s.saved, t)
		created = true
	}
	if s.sessionID != id || s.lockedID != id {
		s.sessionID = id
		s.lockedID = id
		s.sessionChangedLocked()
	}
	s.treesChangedLocked()
	if s.hooks.OnAutoSave != nil {
		fn := s.hooks.OnAutoSave
		s.emit(func() { fn(t, created) })
	}
}

// savedTreeID derives the saved tree id for a session id.
func savedTreeID(sessionID string) string {
	if strings.HasPrefix(sessionID, ident.TreePrefix+"-") {
		return sessionID
	}
	return ident.TreePrefix + "-" + sessionID
}

// treeChangedLocked is called after nodes or the active pointer change.
func (s *Session) treeChangedLocked() {
	s.sessionChangedLocked()
	s.autosave.Notify()
}

func (s *Session) sessionChangedLocked() {
	rec := s.recordLocked()
	if p := s.persister; p != nil {
		s.writer.enqueue(KeySession, func(ctx context.Context) error { return p.SaveSession(ctx, rec) })
	}
	if s.hooks.OnChange != nil {
		fn := s.hooks.OnChange
		s.emit(func() { fn(rec) })
	}
}

func (s *Session) treesChangedLocked() {
	trees := cloneTrees(s.saved)
	if p := s.persister; p != nil {
		s.writer.enqueue(KeySavedTrees, func(ctx context.Context) error { return p.SaveSavedTrees(ctx, trees) })
	}
	if s.hooks.OnTreesChanged != nil {
		fn := s.hooks.OnTreesChanged
		s.emit(func() { fn(cloneTrees(trees)) })
	}
}

func (s *Session) recordLocked() model.SessionRecord {
	nodes := model.CloneNodes(s.nodes)
	return model.SessionRecord{
		Nodes:          nodes,
		ActiveNodeID:   model.StrPtr(s.activeID),
		SessionID:      model.StrPtr(s.sessionID),
		SessionName:    s.name,
		LoadedFromSave: s.loadedFromSave,
	}
}

// Snapshot returns a copy of the live session.
func (s *Session) Snapshot() model.SessionRecord {
	s.lock()
	defer s.unlock()
	return s.recordLocked()
}

func (s *Session) ActiveNodeID() string {
	s.lock()
	defer s.unlock()
	return s.activeID
}

func (s *Session) Node(id string) (model.TreeNode, bool) {
	s.lock()
	defer s.unlock()
	if i := s.indexByIDLocked(id); i >= 0 {
		return model.CloneNodes(s.nodes[i : i+1])[0], true
	}
	return model.TreeNode{}, false
}

func (s *Session) SavedTrees() []model.SavedTree {
	s.lock()
	defer s.unlock()
	return cloneTrees(s.saved)
}

func (s *Session) SavedTree(id string) (model.SavedTree, bool) {
	s.lock()
	defer s.unlock()
	if i := s.savedIndexLocked(id); i >= 0 {
		return cloneTrees(s.saved[i : i+1])[0], true
	}
	return model.SavedTree{}, false
}

// ImportTree adds or replaces a saved tree (used by backups).
func (s *Session) ImportTree(t model.SavedTree) {
	s.lock()
	defer s.unlock()
	t = cloneTrees([]model.SavedTree{t})[0]
	if i := s.savedIndexLocked(t.ID); i >= 0 {
		s.saved[i] = t
	} else {
		s.saved = append(s.saved, t)
	}
	s.treesChangedLocked()
}

// AutoSavePending reports whether a debounced save is scheduled.
func (s *Session) AutoSavePending() bool { return s.autosave.Pending() }

// FlushAutoSave runs a scheduled auto-save immediately.
func (s *Session) FlushAutoSave() { s.autosave.Flush() }

// Sync blocks until queued persistence writes have been attempted.
func (s *Session) Sync() { s.writer.Wait() }

// Close flushes the pending auto-save, waits for outbound navigation and
// drains persistence. The Session must not be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.autosave.Flush()
	s.autosave.Stop()
	s.navWG.Wait()
	return s.writer.Close(ctx)
}

func (s *Session) indexByTitleLocked(title string) int {
	for i := range s.nodes {
		if s.nodes[i].Title == title {
			return i
		}
	}
	return -1
}

func (s *Session) indexByIDLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) savedIndexLocked(id string) int {
	for i := range s.saved {
		if s.saved[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTrees(in []model.SavedTree) []model.SavedTree {
	out := make([]model.SavedTree, len(in))
	for i, t := range in {
		t.Nodes = model.CloneNodes(t.Nodes)
		out[i] = t
	}
	return out
}

func callNode(fn func(model.TreeNode), n model.TreeNode) {
	if fn != nil {
		fn(n)
	}
}
