package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stratus-io/stratus/internal/ir"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteBackend stores state snapshots in a local SQLite database. Every
// write appends a row, so any previous serial can be recovered with the
// sqlite3 CLI if a rollback is ever needed.
type sqliteBackend struct {
	db   *sql.DB
	name string
}

func newSQLiteBackend(config map[string]string) (Backend, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("sqlite backend requires 'path' configuration")
	}

	name := config["name"]
	if name == "" {
		name = "default"
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &sqliteBackend{db: db, name: name}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *sqliteBackend) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(b.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Read(ctx context.Context) (*ir.State, error) {
	var content []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT content FROM state_snapshots WHERE name = ? ORDER BY serial DESC LIMIT 1`,
		b.name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state snapshot: %w", err)
	}

	decrypted, err := DecryptState(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}
	return UnmarshalState(decrypted)
}

func (b *sqliteBackend) Write(ctx context.Context, state *ir.State) error {
	content, err := MarshalState(state)
	if err != nil {
		return err
	}
	encrypted, err := EncryptState(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state_snapshots (name, serial, lineage, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.name, state.Serial, state.Lineage, encrypted, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write state snapshot: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Lock() error {
	info := fmt.Sprintf("pid=%d time=%s", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_, err := b.db.Exec(
		`INSERT INTO state_locks (name, info) VALUES (?, ?)`,
		b.name, info)
	if err != nil {
		return fmt.Errorf("state %q is locked by another process "+
			"(delete the row from state_locks to force-unlock): %w", b.name, err)
	}
	return nil
}

func (b *sqliteBackend) Unlock() error {
	if _, err := b.db.Exec(`DELETE FROM state_locks WHERE name = ?`, b.name); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
