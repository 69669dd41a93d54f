// Package store persists compiled program images in a content-addressed
// SQLite database, keyed by the SHA-256 of the canonical image bytes.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("xvm.store")

// ErrNotFound indicates the requested image is not in the store.
var ErrNotFound = errors.New("program not found")

// Store is a content-addressed index of program images. Storing the same
// image twice is a no-op: the content hash is the identity.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Entry describes one stored program image.
type Entry struct {
	Hash      string
	ID        string
	Size      int
	CreatedAt time.Time
}

// Open opens (or creates) the store database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		hash       TEXT PRIMARY KEY,
		id         TEXT NOT NULL,
		image      BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating programs table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Hash returns the content hash of an image.
func Hash(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Put stores an image and returns its content hash. Images already present
// are left untouched.
func (s *Store) Put(image []byte) (string, error) {
	hash := Hash(image)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO programs (hash, id, image, created_at) VALUES (?, ?, ?, ?)`,
		hash, uuid.NewString(), image, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("storing program %s: %w", hash, err)
	}

	log.Debugf("stored program %s (%d bytes)", hash, len(image))
	return hash, nil
}

// Get returns the image stored under hash.
func (s *Store) Get(hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var image []byte
	err := s.db.QueryRow(`SELECT image FROM programs WHERE hash = ?`, hash).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading program %s: %w", hash, err)
	}
	return image, nil
}

// List returns the entries in the store, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT hash, id, length(image), created_at FROM programs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.ID, &e.Size, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning program row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
