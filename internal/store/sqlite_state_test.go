package store

import (
	"context"
	"database/sql"
	"testing"

	"rabbithole/internal/model"
	"rabbithole/internal/tree"
)

func TestSQLiteStore_EmptyLoads(t *testing.T) {
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	rec, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if len(rec.Nodes) != 0 || rec.ActiveNodeID != nil || rec.SessionID != nil {
		t.Fatalf("expected empty session, got %+v", rec)
	}
	if rec.Nodes == nil {
		t.Fatalf("expected non-nil nodes slice")
	}

	trees, err := s.LoadSavedTrees(ctx)
	if err != nil {
		t.Fatalf("load saved trees: %v", err)
	}
	if trees == nil || len(trees) != 0 {
		t.Fatalf("expected empty collection, got %+v", trees)
	}
}

func TestSQLiteStore_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	rec := model.SessionRecord{
		Nodes: []model.TreeNode{
			{ID: "node-a", Title: "Dog", URL: "https://en.wikipedia.org/wiki/Dog", Timestamp: 100},
			{ID: "node-b", Title: "Cat", URL: "https://en.wikipedia.org/wiki/Cat", ParentID: model.StrPtr("node-a"), Timestamp: 200},
		},
		ActiveNodeID: model.StrPtr("node-b"),
		SessionID:    model.StrPtr("tree-abc"),
		SessionName:  "Dog",
	}
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save session: %v", err)
	}
	// Overwrite keeps a single row per key.
	rec.SessionName = "Pets"
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save session again: %v", err)
	}

	got, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if len(got.Nodes) != 2 || got.Nodes[1].Parent() != "node-a" || !got.Nodes[0].IsRoot() {
		t.Fatalf("unexpected nodes: %+v", got.Nodes)
	}
	if model.PtrStr(got.ActiveNodeID) != "node-b" || model.PtrStr(got.SessionID) != "tree-abc" || got.SessionName != "Pets" {
		t.Fatalf("unexpected record: %+v", got)
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if _, ok := keys[tree.KeySession]; !ok || len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestSQLiteStore_SavedTreesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	trees := []model.SavedTree{
		{ID: "tree-1", Name: "One", CreatedAt: 10, Nodes: []model.TreeNode{{ID: "node-1", Title: "A", Timestamp: 1}}},
		{ID: "tree-2", Name: "Two", CreatedAt: 20},
	}
	if err := s.SaveSavedTrees(ctx, trees); err != nil {
		t.Fatalf("save trees: %v", err)
	}
	got, err := s.LoadSavedTrees(ctx)
	if err != nil {
		t.Fatalf("load trees: %v", err)
	}
	if len(got) != 2 || got[0].ID != "tree-1" || got[1].Name != "Two" {
		t.Fatalf("unexpected trees: %+v", got)
	}
	if got[1].Nodes == nil {
		t.Fatalf("expected nodes to be normalized to an empty slice")
	}
}

func TestSQLiteStore_MalformedRecordIsError(t *testing.T) {
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	db, err := s.openSQLite(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO kv(k, v, updated_at_unixms) VALUES(?, ?, ?)`, tree.KeySavedTrees, "{not json", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = db.Close()

	if _, err := s.LoadSavedTrees(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSQLiteStore_DrivesSession(t *testing.T) {
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	sess := tree.New(tree.Options{Persister: s})
	sess.AddNode("Dog", "https://en.wikipedia.org/wiki/Dog", model.ContextSessionStart)
	sess.AddNode("Cat", "https://en.wikipedia.org/wiki/Cat", model.ContextTextSelection)
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	restored := tree.New(tree.Options{Persister: s})
	defer func() { _ = restored.Close(ctx) }()
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	snap := restored.Snapshot()
	if len(snap.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %+v", snap.Nodes)
	}
	// Close flushed the debounced auto-save, so the tree is saved and locked.
	saved := restored.SavedTrees()
	if len(saved) != 1 || saved[0].Name != "Dog" {
		t.Fatalf("expected one saved tree named Dog, got %+v", saved)
	}
	if model.PtrStr(snap.SessionID) != saved[0].ID {
		t.Fatalf("expected session locked to %s, got %v", saved[0].ID, model.PtrStr(snap.SessionID))
	}
}

func TestMigrateSQLiteState_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}
	db, err := s.openSQLite(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func(db *sql.DB) { _ = db.Close() }(db)
	if err := migrateSQLiteState(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
