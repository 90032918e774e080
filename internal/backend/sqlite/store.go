// Package sqlite provides a SQLite-backed backend.Store using the pure-Go
// modernc.org/sqlite driver. A Batch is a single transaction, which gives
// the atomic multi-document semantics the chunk store's rollover depends on.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"monkeypress/internal/backend"
	"monkeypress/internal/logging"
)

// Store is a SQLite-backed document store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ backend.Store = (*Store)(nil)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc.org/sqlite serializes writes; one connection avoids
	// SQLITE_BUSY between the flush timer and readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logging.Default(logger).With("component", "backend", "type", "sqlite"),
	}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc []byte) error {
	return s.Batch(ctx, []backend.Write{{Collection: collection, ID: id, Doc: doc}})
}

func (s *Store) Batch(ctx context.Context, writes []backend.Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for _, w := range writes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, doc) VALUES (?, ?, ?)
			 ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc`,
			w.Collection, w.ID, w.Doc,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("write %s/%s: %w", w.Collection, w.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]backend.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, doc FROM documents WHERE collection = ? ORDER BY id",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []backend.Document
	for rows.Next() {
		var d backend.Document
		if err := rows.Scan(&d.ID, &d.Doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

func (s *Store) Close() error {
	s.logger.Info("closing sqlite backend", "path", s.path)
	return s.db.Close()
}
