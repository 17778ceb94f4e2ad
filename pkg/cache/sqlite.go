package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key         TEXT PRIMARY KEY,
    payload     BLOB NOT NULL,
    written_at  INTEGER NOT NULL
);`

type sqliteRow struct {
	Key       string `db:"key"`
	Payload   []byte `db:"payload"`
	WrittenAt int64  `db:"written_at"`
}

// SQLiteStore keeps entries in a single SQLite table.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database %s: %w", path, err)
	}
	// SQLite serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(key string) (Entry, error) {
	var row sqliteRow
	err := s.db.Get(&row, `SELECT key, payload, written_at FROM cache_entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Key:       row.Key,
		Payload:   row.Payload,
		WrittenAt: time.Unix(0, row.WrittenAt).UTC(),
	}, nil
}

func (s *SQLiteStore) Save(entry Entry) error {
	_, err := s.db.NamedExec(`
		INSERT INTO cache_entries (key, payload, written_at)
		VALUES (:key, :payload, :written_at)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, written_at = excluded.written_at`,
		sqliteRow{Key: entry.Key, Payload: entry.Payload, WrittenAt: entry.WrittenAt.UnixNano()})
	return err
}

func (s *SQLiteStore) Delete(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM cache_entries`)
	return err
}
