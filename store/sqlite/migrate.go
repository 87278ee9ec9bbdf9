package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationFS embed.FS

// open opens a SQLite database with the pragmas every store uses.
// Use ":memory:" for an in-memory database.
func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// runMigrations applies the embedded migrations under dir. It does not
// close db.
func runMigrations(db *sql.DB, dir string) error {
	src, err := iofs.New(migrationFS, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
