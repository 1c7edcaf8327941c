// Package hashcache persists dedup SHA-256 results between runs, so a
// resumed run over unchanged archives skips re-hashing.
package hashcache

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Key identifies a hashed archive entry. The archive mtime is part of
// the key so rows from a modified archive are never reused.
type Key struct {
	ZipPath   string
	EntryPath string
	Size      uint64
	ZipMtime  int64
}

// Cache is a sqlite-backed hash store. A nil *Cache is valid and acts
// as an always-miss cache.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening hash cache: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to hash cache: %w", err)
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS hashes (
		zip_path TEXT NOT NULL,
		entry_path TEXT NOT NULL,
		size INTEGER NOT NULL,
		zip_mtime INTEGER NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (zip_path, entry_path))`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating hashes table: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached hash for a key, or "" on miss. Rows whose size
// or archive mtime no longer match are misses.
func (c *Cache) Get(k Key) string {
	if c == nil {
		return ""
	}
	var hash string
	err := c.db.QueryRow(
		`SELECT hash FROM hashes WHERE zip_path = ? AND entry_path = ? AND size = ? AND zip_mtime = ?`,
		k.ZipPath, k.EntryPath, k.Size, k.ZipMtime).Scan(&hash)
	if err != nil {
		return ""
	}
	return hash
}

// PutAll upserts a batch of fresh hashes in one transaction.
func (c *Cache) PutAll(entries map[Key]string) error {
	if c == nil || len(entries) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning hash cache transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO hashes (zip_path, entry_path, size, zip_mtime, hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (zip_path, entry_path) DO UPDATE SET size = excluded.size, zip_mtime = excluded.zip_mtime, hash = excluded.hash`)
	if err != nil {
		return fmt.Errorf("preparing hash cache insert: %w", err)
	}
	defer stmt.Close()

	for k, hash := range entries {
		if _, err := stmt.Exec(k.ZipPath, k.EntryPath, k.Size, k.ZipMtime, hash); err != nil {
			return fmt.Errorf("storing hash for %s: %w", k.EntryPath, err)
		}
	}
	return tx.Commit()
}
