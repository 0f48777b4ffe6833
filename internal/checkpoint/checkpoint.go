// Package checkpoint persists completed-work markers so that expensive,
// rate-limited external calls (quote extraction, metadata lookups) are not
// repeated for keys that already succeeded. A key present in the store was
// fully and successfully processed; callers mark completion only after the
// dependent snapshot write has landed.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite-backed key-value map of (stage, key) -> metadata.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the checkpoint database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA synchronous=FULL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Complete marks a key as fully processed. The write is durable when this
// returns, so a crash before the next key's external call loses nothing.
func (s *Store) Complete(stage, key string, meta map[string]any) error {
	var metaJSON []byte
	if meta != nil {
		var err error
		metaJSON, err = json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encoding checkpoint meta: %w", err)
		}
	}
	_, err := s.conn.Exec(
		`INSERT INTO checkpoints (stage, key, meta) VALUES (?, ?, ?)
		ON CONFLICT(stage, key) DO UPDATE SET meta = excluded.meta, completed_at = datetime('now')`,
		stage, key, nullableString(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("writing checkpoint %s/%s: %w", stage, key, err)
	}
	return nil
}

// IsComplete reports whether a key was fully processed in a prior run.
func (s *Store) IsComplete(stage, key string) (bool, error) {
	var n int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM checkpoints WHERE stage = ? AND key = ?", stage, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("reading checkpoint %s/%s: %w", stage, key, err)
	}
	return n > 0, nil
}

// Clear removes a key so the next run reprocesses it.
func (s *Store) Clear(stage, key string) error {
	_, err := s.conn.Exec("DELETE FROM checkpoints WHERE stage = ? AND key = ?", stage, key)
	return err
}

// ClearStage removes every key for a stage (used by --force runs that should
// also forget prior completions).
func (s *Store) ClearStage(stage string) error {
	_, err := s.conn.Exec("DELETE FROM checkpoints WHERE stage = ?", stage)
	return err
}

// Keys returns the completed keys for a stage in insertion order.
func (s *Store) Keys(stage string) ([]string, error) {
	rows, err := s.conn.Query(
		"SELECT key FROM checkpoints WHERE stage = ? ORDER BY rowid", stage,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Count returns the number of completed keys for a stage.
func (s *Store) Count(stage string) (int, error) {
	var n int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM checkpoints WHERE stage = ?", stage).Scan(&n)
	return n, err
}

// Meta returns the metadata stored with a completed key, or nil if absent.
func (s *Store) Meta(stage, key string) (map[string]any, error) {
	var metaJSON sql.NullString
	err := s.conn.QueryRow(
		"SELECT meta FROM checkpoints WHERE stage = ? AND key = ?", stage, key,
	).Scan(&metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !metaJSON.Valid || metaJSON.String == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
		return nil, fmt.Errorf("decoding checkpoint meta %s/%s: %w", stage, key, err)
	}
	return meta, nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
