// Package store persists compiled module images and profiling data.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("store")

// ErrModuleNotFound indicates the requested module isn't stored.
var ErrModuleNotFound = errors.New("module not found")

// Store is the persistent cache of compiled module images, keyed by
// import name. Images are the program file bytes as written by the
// codec, hashed for change detection.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Entry describes one stored module without its image bytes.
type Entry struct {
	Name      string
	QualName  string
	Hash      string
	Size      int64
	CreatedAt time.Time
}

func ensureParentDir(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
	}
	return nil
}

// Open opens the module store at path, creating the database and its
// parent directory if needed.
func Open(path string) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		name TEXT PRIMARY KEY,
		qualname TEXT NOT NULL,
		image BLOB NOT NULL,
		hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores a module image under name, replacing any previous image.
func (s *Store) Put(name, qualname string, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(image)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO modules (name, qualname, image, hash, created_at) VALUES (?, ?, ?, ?, ?)",
		name, qualname, image, hex.EncodeToString(sum[:]), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing module %s: %w", name, err)
	}

	log.Debugf("stored module %s (%d bytes)", name, len(image))
	return nil
}

// Get retrieves a module image by name.
func (s *Store) Get(name string) ([]byte, error) {
	var image []byte
	err := s.db.QueryRow("SELECT image FROM modules WHERE name = ?", name).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module %s: %w", name, err)
	}
	return image, nil
}

// Stat returns a module's metadata without its image.
func (s *Store) Stat(name string) (*Entry, error) {
	var e Entry
	var created string
	err := s.db.QueryRow(
		"SELECT name, qualname, hash, length(image), created_at FROM modules WHERE name = ?",
		name,
	).Scan(&e.Name, &e.QualName, &e.Hash, &e.Size, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module %s: %w", name, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &e, nil
}

// Delete removes a module from the store.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM modules WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting module %s: %w", name, err)
	}
	return nil
}

// Names returns the stored module names, sorted.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Entries returns metadata for every stored module, sorted by name.
func (s *Store) Entries() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, qualname, hash, length(image), created_at FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.Name, &e.QualName, &e.Hash, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
