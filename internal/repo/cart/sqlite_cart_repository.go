package cart

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/mkrupp/shopcart/internal/domain"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	"github.com/mkrupp/shopcart/internal/infra/sqlite"
	"github.com/mkrupp/shopcart/internal/util/keylock"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "cart_schema_migrations"

// SQLiteCartRepositoryConfig holds configuration for the SQLite cart repository.
type SQLiteCartRepositoryConfig struct {
	sqlite.Config
}

// SQLiteCartRepository implements Repository on SQLite. Items are kept in
// their own table with an explicit position to preserve insertion order.
type SQLiteCartRepository struct {
	db        *sql.DB
	log       logging.Logger
	locks     *keylock.KeyLock
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteCartRepository)(nil)

// SQLiteCartRepositoryFactory creates a factory function that returns a new SQLiteCartRepository.
func SQLiteCartRepositoryFactory(cfg SQLiteCartRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewSQLiteCartRepository(ctx, cfg)
	}
}

// NewSQLiteCartRepository opens the database and applies the cart schema migrations.
func NewSQLiteCartRepository(ctx context.Context, cfg SQLiteCartRepositoryConfig) (*SQLiteCartRepository, error) {
	log := logging.GetLogger("repo.cart.sqlite_cart_repository").With(
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

	return &SQLiteCartRepository{
		db:        db,
		log:       log,
		locks:     keylock.New(),
		writeLock: new(sync.Mutex),
	}, nil
}

// Lock implements Repository.Lock with an in-process lock per user.
func (r *SQLiteCartRepository) Lock(ctx context.Context, userID string) (func(), error) {
	unlock, err := r.locks.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart %s: %w", userID, domain.StoreError(err))
	}

	return unlock, nil
}

// Create implements Repository.Create.
func (r *SQLiteCartRepository) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ts := now()
	cart = cart.Clone()
	cart.Version = 1
	cart.CreatedAt = ts
	cart.UpdatedAt = ts

	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO carts (user_id, total_price, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			cart.UserID,
			cart.TotalPrice,
			cart.Version,
			cart.CreatedAt.UnixMilli(),
			cart.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			if sqlite.IsConstraintViolation(err) {
				err = errors.Join(domain.ErrCartAlreadyExists, err)
			}

			return fmt.Errorf("insert cart: %w", err)
		}

		return insertItems(ctx, tx, cart)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	return cart, nil
}

// Get implements Repository.Get.
func (r *SQLiteCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := loadCart(ctx, r.db, userID)
	if err != nil {
		return domain.Cart{}, domain.StoreError(err)
	}

	return cart, nil
}

// Save implements Repository.Save as a compare-and-set on the version column.
func (r *SQLiteCartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	cart = cart.Clone()
	expected := cart.Version
	cart.Version++
	cart.UpdatedAt = now()

	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE carts SET total_price = ?, version = ?, updated_at = ? WHERE user_id = ? AND version = ?",
			cart.TotalPrice,
			cart.Version,
			cart.UpdatedAt.UnixMilli(),
			cart.UserID,
			expected,
		)
		if err != nil {
			return fmt.Errorf("update cart: %w", err)
		}

		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			var stored uint64
			err := tx.QueryRowContext(ctx, "SELECT version FROM carts WHERE user_id = ?", cart.UserID).Scan(&stored)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", domain.ErrCartNotFound, cart.UserID)
			} else if err != nil {
				return fmt.Errorf("query version: %w", err)
			}

			return fmt.Errorf("%w: have %d, stored %d", domain.ErrCartVersionMismatch, expected, stored)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ?", cart.UserID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}

		return insertItems(ctx, tx, cart)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	return cart, nil
}

// Delete implements Repository.Delete.
func (r *SQLiteCartRepository) Delete(ctx context.Context, userID string) (domain.Cart, error) {
	var cart domain.Cart

	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		var err error

		if cart, err = loadCart(ctx, tx, userID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM carts WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}

		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}

	return cart, nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteCartRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

func (r *SQLiteCartRepository) writeTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	defer func() {
		if err != nil {
			err = domain.StoreError(err)
			r.log.DebugContext(ctx, "write tx rolled back", "error", err)
		}
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadCart(ctx context.Context, q queryer, userID string) (domain.Cart, error) {
	var (
		cart             domain.Cart
		created, updated int64
	)

	err := q.QueryRowContext(ctx,
		"SELECT user_id, total_price, version, created_at, updated_at FROM carts WHERE user_id = ?",
		userID,
	).Scan(&cart.UserID, &cart.TotalPrice, &cart.Version, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, fmt.Errorf("%w: %s", domain.ErrCartNotFound, userID)
		}

		return domain.Cart{}, fmt.Errorf("query cart: %w", err)
	}

	cart.CreatedAt = time.UnixMilli(created).UTC()
	cart.UpdatedAt = time.UnixMilli(updated).UTC()

	rows, err := q.QueryContext(ctx,
		"SELECT product_id, quantity, price, subtotal FROM cart_items WHERE user_id = ? ORDER BY position",
		userID,
	)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	cart.Items = []domain.LineItem{}

	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price, &item.Subtotal); err != nil {
			return domain.Cart{}, fmt.Errorf("scan item: %w", err)
		}

		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate items: %w", err)
	}

	return cart, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, cart domain.Cart) error {
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO cart_items (user_id, position, product_id, quantity, price, subtotal) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare insert item: %w", err)
	}
	defer stmt.Close()

	for i, item := range cart.Items {
		if _, err := stmt.ExecContext(ctx, cart.UserID, i, item.ProductID, item.Quantity, item.Price, item.Subtotal); err != nil {
			return fmt.Errorf("insert item %s: %w", item.ProductID, err)
		}
	}

	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
