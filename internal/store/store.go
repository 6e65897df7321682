// Package store implements the persistence layer: the SQLite-backed service
// and user repositories consumed by the traffic monitor.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maypok86/otter"

	"github.com/orbitvpn/sentinel/internal/model"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const (
	dbFileName = "sentinel.db"

	userCacheCapacity = 4096
	userCacheTTL      = 5 * time.Minute
)

// Store wraps the SQLite database and provides CRUD for services and users.
// All writes are serialized by an internal mutex.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	// Read-through cache for user lookups; notification paths hit
	// UserByID once per queued message.
	userCache otter.Cache[int64, model.User]
}

// Open opens (or creates) the database under stateDir, applies pragmas and
// migrations, and returns a ready Store.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("store mkdir %s: %w", stateDir, err)
	}

	path := filepath.Join(stateDir, dbFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store pragma %q: %w", p, err)
		}
	}

	if err := migrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	cache, err := otter.MustBuilder[int64, model.User](userCacheCapacity).
		Cost(func(_ int64, _ model.User) uint32 { return 1 }).
		WithTTL(userCacheTTL).
		Build()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store user cache: %w", err)
	}

	return &Store{db: db, userCache: cache}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.userCache.Close()
	return s.db.Close()
}
