// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Provides credentials/key/settings/warning persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements KeyRecordStore, SettingsStore and WarningStore
// in a single struct sharing one database connection.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists (skip for in-memory databases)
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// foreign_keys and busy_timeout are per-connection, so they go in the
	// DSN where they apply to every pooled connection; WAL is persistent.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS key_records (
			type TEXT NOT NULL,
			id TEXT NOT NULL,
			value BLOB NOT NULL,
			group_id TEXT,
			user_id TEXT,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (type, id)
		);

		CREATE INDEX IF NOT EXISTS idx_key_records_group_user
			ON key_records(type, group_id, user_id);

		CREATE TABLE IF NOT EXISTS group_settings (
			group_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 0,
			welcome INTEGER NOT NULL DEFAULT 0,
			farewell INTEGER NOT NULL DEFAULT 0,
			block_media INTEGER NOT NULL DEFAULT 0,
			block_links INTEGER NOT NULL DEFAULT 0,
			banned_words TEXT NOT NULL DEFAULT '[]',
			max_warnings INTEGER NOT NULL DEFAULT 3,
			rules TEXT NOT NULL DEFAULT '',
			whitelist TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_warnings (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			count INTEGER NOT NULL,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (group_id, user_id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ensure SQLiteStore implements all store interfaces
var _ KeyRecordStore = (*SQLiteStore)(nil)
var _ SettingsStore = (*SQLiteStore)(nil)
var _ WarningStore = (*SQLiteStore)(nil)
