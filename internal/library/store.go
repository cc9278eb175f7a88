// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Store provides SQLite persistence for watched directories and items.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	// busy_timeout avoids "database locked" errors
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS watch_dirs (
		path TEXT PRIMARY KEY,
		added_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		root TEXT NOT NULL,
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ext TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		mod_time TEXT NOT NULL,
		indexed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_root ON items(root);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddWatch records a watched directory. Re-adding keeps the original time.
func (s *Store) AddWatch(ctx context.Context, path string, addedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watch_dirs (path, added_at) VALUES (?, ?) ON CONFLICT(path) DO NOTHING`,
		path, addedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// RemoveWatch deletes a watched directory and its items.
func (s *Store) RemoveWatch(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE root = ?`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM watch_dirs WHERE path = ?`, path); err != nil {
		return err
	}
	return tx.Commit()
}

// Watches lists watched directories with their item counts.
func (s *Store) Watches(ctx context.Context) ([]Watch, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT w.path, w.added_at, COUNT(i.path)
	FROM watch_dirs w
	LEFT JOIN items i ON i.root = w.path
	GROUP BY w.path, w.added_at
	ORDER BY w.path
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var watches []Watch
	for rows.Next() {
		var w Watch
		var addedAt string
		if err := rows.Scan(&w.Path, &addedAt, &w.ItemCount); err != nil {
			return nil, err
		}
		w.AddedAt, _ = time.Parse(time.RFC3339Nano, addedAt)
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

// ReplaceItems atomically replaces every item under root.
func (s *Store) ReplaceItems(ctx context.Context, root string, items []Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE root = ?`, root); err != nil {
		return err
	}
	for _, item := range items {
		if err := upsertItem(ctx, tx, item); err != nil {
			return fmt.Errorf("upsert %s: %w", item.Path, err)
		}
	}
	return tx.Commit()
}

// UpsertItem inserts or updates a single item.
func (s *Store) UpsertItem(ctx context.Context, item Item) error {
	return upsertItem(ctx, s.db, item)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertItem(ctx context.Context, db execer, item Item) error {
	_, err := db.ExecContext(ctx, `
	INSERT INTO items (root, path, name, ext, size_bytes, mod_time, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		root = excluded.root,
		name = excluded.name,
		ext = excluded.ext,
		size_bytes = excluded.size_bytes,
		mod_time = excluded.mod_time,
		indexed_at = excluded.indexed_at
	`,
		item.Root,
		item.Path,
		item.Name,
		item.Extension,
		item.SizeBytes,
		item.ModTime.UTC().Format(time.RFC3339Nano),
		item.IndexedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// DeletePath removes the item at path and any items below it.
func (s *Store) DeletePath(ctx context.Context, path string) (int64, error) {
	sep := string(filepath.Separator)
	prefix := strings.TrimSuffix(path, sep) + sep
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE path = ? OR substr(path, 1, ?) = ?`,
		path, len(prefix), prefix)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Items lists items under root ordered by path. An empty root lists all.
func (s *Store) Items(ctx context.Context, root string) ([]Item, error) {
	query := `SELECT root, path, name, ext, size_bytes, mod_time, indexed_at FROM items`
	var args []any
	if root != "" {
		query += ` WHERE root = ?`
		args = append(args, root)
	}
	query += ` ORDER BY path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		var modTime, indexedAt string
		if err := rows.Scan(&item.Root, &item.Path, &item.Name, &item.Extension, &item.SizeBytes, &modTime, &indexedAt); err != nil {
			return nil, err
		}
		item.ModTime, _ = time.Parse(time.RFC3339Nano, modTime)
		item.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}
