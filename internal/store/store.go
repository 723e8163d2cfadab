package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Current schema
const currentSchemaVersion = 1

// Priors are the neutral defaults returned by read queries when no history
// exists for a rule or pattern. Readers never error on missing telemetry;
// the orchestrator must not be blocked by an empty store.
type Priors struct {
	FailureRate float64
	Latency     time.Duration
}

// Store provides durable, append-only storage for validation history.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db     *sql.DB
	priors Priors
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// A corrupted backing file is treated as empty: it is removed and the
// schema is reinitialized. This function is idempotent.
func Open(path string, priors Priors) (*Store, error) {
	db, err := openAndInit(path)
	if err != nil {
		if path != ":memory:" && isCorruption(err) {
			if rmErr := os.Remove(path); rmErr != nil {
				return nil, fmt.Errorf("remove corrupted database: %w", rmErr)
			}
			db, err = openAndInit(path)
		}
		if err != nil {
			return nil, err
		}
	}

	return &Store{db: db, priors: priors}, nil
}

func openAndInit(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection
	// serializes writers and avoids SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// isCorruption reports whether an open error indicates an unreadable or
// non-database file rather than an operational failure.
func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// No incremental migrations yet; schema.sql is authoritative for v1.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// errNoRows is a convenience for prior-fallback checks.
func errNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
