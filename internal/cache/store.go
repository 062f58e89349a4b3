// Package cache is the engine's persistent cache layer. It backs the
// market-data-oracle response cache and the auto-detected-exchange
// publication log.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS oracle_cache (
    cache_key   TEXT PRIMARY KEY,
    payload     TEXT NOT NULL,
    expires_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS exchange_detections (
    address     TEXT NOT NULL,
    label       TEXT,
    detected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    source      TEXT,
    PRIMARY KEY (address)
);
`

// Store is a small sqlite-backed KV cache. Safe for concurrent use —
// the sqlite driver serializes writers internally.
type Store struct {
	db *sql.DB
}

// Open creates/opens the cache database at path and applies schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the cached payload for key if present and unexpired.
func (s *Store) Get(key string) (string, bool) {
	var payload string
	var expiresAt time.Time
	row := s.db.QueryRow("SELECT payload, expires_at FROM oracle_cache WHERE cache_key = ?", key)
	if err := row.Scan(&payload, &expiresAt); err != nil {
		return "", false
	}
	if time.Now().After(expiresAt) {
		return "", false
	}
	return payload, true
}

// Set upserts a cache entry with the given TTL.
func (s *Store) Set(key, payload string, ttl time.Duration) error {
	_, err := s.db.Exec(
		`INSERT INTO oracle_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, payload, time.Now().Add(ttl),
	)
	return err
}

// RecordExchangeDetection persists an auto-promoted exchange address so
// the in-memory whitelist can be reseeded across restarts.
func (s *Store) RecordExchangeDetection(address, label, source string) error {
	_, err := s.db.Exec(
		`INSERT INTO exchange_detections (address, label, source) VALUES (?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET label = excluded.label, source = excluded.source`,
		address, label, source,
	)
	return err
}

// LoadExchangeDetections returns every previously-persisted auto
// detection, used to reseed the Whitelist at startup.
func (s *Store) LoadExchangeDetections() ([]string, error) {
	rows, err := s.db.Query("SELECT address FROM exchange_detections")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}
