// Package sqlite opens SQLite databases and applies embedded schema migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/shopcart/internal/infra/logging"
)

// Config holds the connection settings shared by the SQLite-backed repositories.
type Config struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/shopcart.db"`

	// BusyTimeout is how long a writer waits for a locked database
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" default:"5s"`
}

// Open opens the database at cfg.DatabasePath, creating its directory if needed.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir all: %w", err)
		}
	}

	// pragmas in the DSN apply to every pooled connection
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_txlock=immediate",
		cfg.DatabasePath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate applies all pending migrations found in migrations (a directory of
// golang-migrate *.up.sql / *.down.sql files). Each caller passes its own
// table so several repositories can share one database file.
func Migrate(ctx context.Context, cfg Config, migrations fs.FS, table string) (err error) {
	log := logging.GetLogger("infra.sqlite").With(logging.Group("migrate",
		"path", cfg.DatabasePath,
		"table", table,
	))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "migrate failed", "error", err)
		}
	}()

	// migrate closes the connection it is given, so it gets its own
	db, err := Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}

	source, err := iofs.New(migrations, ".")
	if err != nil {
		_ = db.Close()

		return fmt.Errorf("create migration source: %w", err)
	}

	//nolint:exhaustruct
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: table})
	if err != nil {
		_ = source.Close()
		_ = db.Close()

		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		// the driver owns db
		_ = source.Close()
		_ = driver.Close()

		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	log.DebugContext(ctx, "migrations applied", "version", version, "dirty", dirty)

	return nil
}

// IsConstraintViolation reports whether err is a SQLite primary key or unique constraint failure.
func IsConstraintViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}

	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	default:
		return false
	}
}
