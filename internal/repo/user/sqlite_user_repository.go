package user

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkrupp/shopcart/internal/domain"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	"github.com/mkrupp/shopcart/internal/infra/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "user_schema_migrations"

// SQLiteUserRepositoryConfig holds configuration for the SQLite user repository.
type SQLiteUserRepositoryConfig struct {
	sqlite.Config
}

// SQLiteUserRepository implements Repository using SQLite as the storage backend.
type SQLiteUserRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteUserRepository)(nil)

// SQLiteUserRepositoryFactory creates a factory function that returns a new SQLiteUserRepository.
func SQLiteUserRepositoryFactory(cfg SQLiteUserRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewSQLiteUserRepository(ctx, cfg)
	}
}

// NewSQLiteUserRepository opens the database and applies the user schema migrations.
func NewSQLiteUserRepository(ctx context.Context, cfg SQLiteUserRepositoryConfig) (*SQLiteUserRepository, error) {
	log := logging.GetLogger("repo.user.sqlite_user_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}

	if err := sqlite.Migrate(ctx, cfg.Config, migrations, migrationsTable); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sqlite.Open(ctx, cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	return &SQLiteUserRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

// CreateUser implements Repository.CreateUser using SQLite.
func (r *SQLiteUserRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.User{}, fmt.Errorf("new id: %w", err)
	}

	user.ID = id.String()
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, roles, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Roles.String(),
		user.CreatedAt,
	)
	if err != nil {
		if sqlite.IsConstraintViolation(err) {
			err = errors.Join(domain.ErrUserAlreadyExists, err)
		}

		return domain.User{}, fmt.Errorf("insert user: %w", domain.StoreError(err))
	}

	r.log.DebugContext(ctx, "user created", "user.id", user.ID, "user.roles", user.Roles.String())

	return user, nil
}

// GetUserByUsername implements Repository.GetUserByUsername using SQLite.
func (r *SQLiteUserRepository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var (
		user  domain.User
		roles string
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, roles, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &roles, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return domain.User{}, fmt.Errorf("query user: %w", domain.StoreError(err))
	}

	user.Roles, err = domain.ParseRoles(strings.Split(roles, ","))
	if err != nil {
		return domain.User{}, fmt.Errorf("parse roles of %s: %w", user.ID, err)
	}

	return user, nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteUserRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
