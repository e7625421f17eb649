// Package docstore persists document stored fields in a SQLite database
// inside the index directory, so query results can be materialized without
// re-reading source files.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/internal/parse"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
)

// FileName is the document store file inside an index directory.
const FileName = "docs.db"

const schema = `
CREATE TABLE IF NOT EXISTS docs (
	id    TEXT PRIMARY KEY,
	uid   TEXT NOT NULL,
	fond  TEXT NOT NULL,
	title TEXT NOT NULL,
	date  TEXT NOT NULL,
	year  INTEGER NOT NULL,
	path  TEXT NOT NULL,
	extra TEXT NOT NULL
);
`

// Store wraps the SQLite document store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening document store: %v", apperrors.ErrIndexIO, err)
	}
	// The builder is the sole writer and readers arrive only after sealing,
	// but SQLite still wants a single connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating document store schema: %v", apperrors.ErrIndexIO, err)
	}
	return &Store{db: db}, nil
}

// PutBatch inserts documents in one transaction. Re-inserting an id
// replaces the previous row, which keeps rebuild-over-identical-corpus
// deterministic.
func (s *Store) PutBatch(ctx context.Context, docs []*parse.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting store transaction: %v", apperrors.ErrIndexIO, err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO docs (id, uid, fond, title, date, year, path, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: preparing store insert: %v", apperrors.ErrIndexIO, err)
	}
	defer stmt.Close()
	for _, doc := range docs {
		extra, err := json.Marshal(doc.Extra)
		if err != nil {
			return fmt.Errorf("%w: encoding extra fields for %s: %v", apperrors.ErrIndexIO, doc.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx,
			doc.ID(), doc.UID, doc.Fond.String(), doc.Title, doc.Date, doc.Year, doc.Path, string(extra),
		); err != nil {
			return fmt.Errorf("%w: inserting document %s: %v", apperrors.ErrIndexIO, doc.ID(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing store transaction: %v", apperrors.ErrIndexIO, err)
	}
	return nil
}

// Get returns the stored document for id, or nil if absent.
func (s *Store) Get(ctx context.Context, id string) (*parse.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT uid, fond, title, date, year, path, extra FROM docs WHERE id = ?`, id)
	var (
		doc   parse.Document
		fond  string
		extra string
	)
	err := row.Scan(&doc.UID, &fond, &doc.Title, &doc.Date, &doc.Year, &doc.Path, &extra)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading document %s: %v", apperrors.ErrIndexIO, id, err)
	}
	f, err := fonds.Parse(fond)
	if err != nil {
		return nil, fmt.Errorf("%w: document %s: %v", apperrors.ErrIndexIO, id, err)
	}
	doc.Fond = f
	if err := json.Unmarshal([]byte(extra), &doc.Extra); err != nil {
		return nil, fmt.Errorf("%w: decoding extra fields for %s: %v", apperrors.ErrIndexIO, id, err)
	}
	return &doc, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting documents: %v", apperrors.ErrIndexIO, err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
