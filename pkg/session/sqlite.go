// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
)

// SQLiteStore persists sessions in SQLite. Timestamps are stored as Unix
// nanoseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLite-backed store and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, stderrors.New("session: db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// OpenSQLiteStore opens dsn with the modernc driver and wraps it in a store.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.CodeDataUnavailable, "cannot open session database", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, errors.New(errors.CodeDataUnavailable, "cannot prepare session database", err)
	}
	return store, nil
}

func (s *SQLiteStore) Create(ctx context.Context, a *matrix.Assignment) (Record, error) {
	if err := requireAssignment(a); err != nil {
		return Record{}, err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return Record{}, err
	}
	now := s.now().UTC()
	rec := Record{
		ID:          uuid.NewString(),
		Assignment:  a.Clone(),
		Fingerprint: a.FingerprintHex(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO allot_sessions (id, matrix_json, fingerprint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, string(data), rec.Fingerprint, now.UnixNano(), now.UnixNano())
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var (
		rec              Record
		data             string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, matrix_json, fingerprint, created_at, updated_at
		FROM allot_sessions WHERE id = ?
	`, id).Scan(&rec.ID, &data, &rec.Fingerprint, &created, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Record{}, notFound(id)
	}
	if err != nil {
		return Record{}, err
	}
	var a matrix.Assignment
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return Record{}, errors.New(errors.CodeInternal, "stored session matrix is corrupt", err).
			WithContext("session_id", id)
	}
	rec.Assignment = &a
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, a *matrix.Assignment) (Record, error) {
	if err := requireAssignment(a); err != nil {
		return Record{}, err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return Record{}, err
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE allot_sessions SET matrix_json = ?, fingerprint = ?, updated_at = ? WHERE id = ?
	`, string(data), a.FingerprintHex(), now.UnixNano(), id)
	if err != nil {
		return Record{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Record{}, notFound(id)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM allot_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM allot_sessions WHERE updated_at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS allot_sessions (
			id TEXT PRIMARY KEY,
			matrix_json TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_allot_sessions_updated ON allot_sessions(updated_at);
	`)
	return err
}
