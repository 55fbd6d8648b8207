// Package localstore is the durable key-value store backing all on-device
// state. It is the single source of truth between agent restarts: every write
// is committed synchronously before Set returns, which the reconciliation
// guard relies on when it re-reads state just before a sync.
package localstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the store file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Single connection: sqlite allows one writer, and the store's contract
	// is strictly ordered synchronous writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = FULL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value for key. The second return is false when the key
// has never been written.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes key synchronously. The value is durable when Set returns.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// GetJSON unmarshals the value for key into v. Returns false when the key is
// absent; v is left untouched in that case.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode key %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode key %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

// Revision returns the monotonic mutation counter. Zero means no mutation has
// ever been recorded.
func (s *Store) Revision() (int64, error) {
	raw, ok, err := s.Get(KeyRevision)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	rev, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt revision value %q: %w", raw, err)
	}
	return rev, nil
}

// BumpRevision increments the mutation counter and returns the new value.
// Every ledger mutation calls this after its data write so divergence between
// in-memory state and the store is detectable by comparing revisions.
func (s *Store) BumpRevision() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	rev := int64(0)
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = $1`, KeyRevision).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	if err == nil {
		rev, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt revision value %q: %w", raw, err)
		}
	}

	rev++
	_, err = s.db.Exec(`
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, KeyRevision, strconv.FormatInt(rev, 10))
	if err != nil {
		return 0, fmt.Errorf("failed to write revision: %w", err)
	}
	return rev, nil
}
