package storefront

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eringen/storefront/content"
)

// diagnosticTimeFormat is fixed-width so stored times compare as strings.
const diagnosticTimeFormat = "2006-01-02T15:04:05.000000Z"

// Store wraps a SQLite database. It keeps page documents (as a local
// content.Store) and the diagnostics table.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed during writes; writers wait on busy_timeout
	// instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS pages (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    handle TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (kind, handle)
);
CREATE TABLE IF NOT EXISTS diagnostics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at TEXT NOT NULL,
    operation TEXT NOT NULL,
    handle TEXT NOT NULL,
    message TEXT NOT NULL
);
`)
	return err
}

// Upsert implements content.Store. The record id is kept across updates.
func (s *Store) Upsert(ctx context.Context, kind, handle string, data []byte) (content.Record, error) {
	now := time.Now().UTC().Truncate(time.Second)
	var rec content.Record
	var updated string
	err := s.db.QueryRowContext(ctx, `
INSERT INTO pages (id, kind, handle, data, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (kind, handle) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
RETURNING id, kind, handle, data, updated_at`,
		uuid.NewString(), kind, handle, string(data), now.Format(time.RFC3339)).
		Scan(&rec.ID, &rec.Kind, &rec.Handle, &rec.Data, &updated)
	if err != nil {
		return content.Record{}, err
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return rec, nil
}

// Fetch implements content.Store.
func (s *Store) Fetch(ctx context.Context, kind, handle string) (content.Record, error) {
	rec := content.Record{Kind: kind, Handle: handle}
	var updated string
	err := s.db.QueryRowContext(ctx, `SELECT id, data, updated_at FROM pages WHERE kind = ? AND handle = ?`, kind, handle).
		Scan(&rec.ID, &rec.Data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Record{}, content.ErrNotFound
	}
	if err != nil {
		return content.Record{}, err
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return rec, nil
}

// LookupID implements content.Store.
func (s *Store) LookupID(ctx context.Context, kind, handle string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM pages WHERE kind = ? AND handle = ?`, kind, handle).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", content.ErrNotFound
	}
	return id, err
}

// Delete implements content.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return content.ErrNotFound
	}
	return nil
}

// List implements content.Store, ordered by handle.
func (s *Store) List(ctx context.Context, kind string) ([]content.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, handle, data, updated_at FROM pages WHERE kind = ? ORDER BY handle`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []content.Record
	for rows.Next() {
		rec := content.Record{Kind: kind}
		var updated string
		if err := rows.Scan(&rec.ID, &rec.Handle, &rec.Data, &updated); err != nil {
			return nil, err
		}
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendDiagnostic inserts one diagnostics row.
func (s *Store) AppendDiagnostic(ctx context.Context, d Diagnostic) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO diagnostics (at, operation, handle, message) VALUES (?, ?, ?, ?)`,
		d.Time.UTC().Format(diagnosticTimeFormat), d.Operation, d.Handle, d.Message)
	return err
}

// ListDiagnostics returns the most recent diagnostics first.
func (s *Store) ListDiagnostics(ctx context.Context, limit int) ([]Diagnostic, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT at, operation, handle, message FROM diagnostics ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		var at string
		if err := rows.Scan(&at, &d.Operation, &d.Handle, &d.Message); err != nil {
			return nil, err
		}
		d.Time, _ = time.Parse(diagnosticTimeFormat, at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneDiagnostics removes rows older than cutoff.
func (s *Store) PruneDiagnostics(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diagnostics WHERE at < ?`, cutoff.UTC().Format(diagnosticTimeFormat))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
