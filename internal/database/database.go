package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the sqlite-backed store for services, queue entries and
// notifications.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            establishment_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            max_capacity INTEGER NOT NULL,
            is_open BOOLEAN NOT NULL DEFAULT 1,
            queue_number_counter INTEGER NOT NULL DEFAULT 0,
            avg_service_minutes INTEGER NOT NULL DEFAULT 15,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS queue_entries (
            id TEXT PRIMARY KEY,
            service_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            queue_number INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'waiting',
            position INTEGER NOT NULL DEFAULT 0,
            estimated_wait_minutes INTEGER NOT NULL DEFAULT 0,
            joined_at DATETIME NOT NULL,
            called_at DATETIME,
            served_at DATETIME,
            notes TEXT,
            qr_code TEXT UNIQUE NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(service_id, queue_number)
        )`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            entry_id TEXT,
            kind TEXT NOT NULL,
            title TEXT NOT NULL,
            message TEXT NOT NULL,
            sent_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_entries_service_id ON queue_entries(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user_id ON queue_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_status ON queue_entries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_qr_code ON queue_entries(qr_code)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
