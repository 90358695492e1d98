package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB holds the release history database. The chief is the only writer; the
// pool is pinned to one connection so WAL readers never contend with it.
type DB struct {
	*sql.DB
}

const releasePragmas = "_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(ON)"

// NewDB opens (or creates) the release history database at dbPath and
// applies the releases schema. ":memory:" is accepted for tests.
func NewDB(dbPath string) (*DB, error) {
	if !strings.HasPrefix(dbPath, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create release database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?"+releasePragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open release database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping release database: %w", err)
	}

	releaseDB := &DB{DB: db}
	if _, err := releaseDB.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize releases schema: %w", err)
	}

	return releaseDB, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
