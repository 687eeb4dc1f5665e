package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rabbithole/internal/model"
	"rabbithole/internal/tree"

	_ "modernc.org/sqlite"
)

func (s Store) openSQLite(ctx context.Context) (*sql.DB, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.sqlitePath())
	if err != nil {
		return nil, err
	}
	// The service and CLI invocations may share the file.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateSQLiteState(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSQLiteState(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadSession returns the persisted live session. A missing record is an
// empty session.
func (s Store) LoadSession(ctx context.Context) (model.SessionRecord, error) {
	var rec model.SessionRecord
	ok, err := s.readKey(ctx, tree.KeySession, &rec)
	if err != nil {
		return model.SessionRecord{}, err
	}
	if !ok || rec.Nodes == nil {
		rec.Nodes = []model.TreeNode{}
	}
	return rec, nil
}

func (s Store) SaveSession(ctx context.Context, rec model.SessionRecord) error {
	if rec.Nodes == nil {
		rec.Nodes = []model.TreeNode{}
	}
	return s.writeKey(ctx, tree.KeySession, rec)
}

// LoadSavedTrees returns the saved-trees collection. A missing record is an
// empty collection.
func (s Store) LoadSavedTrees(ctx context.Context) ([]model.SavedTree, error) {
	var trees []model.SavedTree
	if _, err := s.readKey(ctx, tree.KeySavedTrees, &trees); err != nil {
		return nil, err
	}
	if trees == nil {
		trees = []model.SavedTree{}
	}
	for i := range trees {
		if trees[i].Nodes == nil {
			trees[i].Nodes = []model.TreeNode{}
		}
	}
	return trees, nil
}

func (s Store) SaveSavedTrees(ctx context.Context, trees []model.SavedTree) error {
	if trees == nil {
		trees = []model.SavedTree{}
	}
	return s.writeKey(ctx, tree.KeySavedTrees, trees)
}

// Keys lists the stored keys with their last write time (used by `config show`).
func (s Store) Keys(ctx context.Context) (map[string]time.Time, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT k, updated_at_unixms FROM kv ORDER BY k`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var (
			k  string
			ms int64
		)
		if err := rows.Scan(&k, &ms); err != nil {
			return nil, err
		}
		out[k] = time.UnixMilli(ms).UTC()
	}
	return out, rows.Err()
}

func (s Store) readKey(ctx context.Context, key string, v any) (bool, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var js string
	err = db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(js), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s Store) writeKey(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	nowMs := time.Now().UTC().UnixMilli()
	_, err = db.ExecContext(ctx, `INSERT INTO kv(k, v, updated_at_unixms) VALUES(?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at_unixms = excluded.updated_at_unixms`,
		key, string(raw), nowMs)
	return err
}
