package cartsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkrupp/shopcart/internal/domain"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	"github.com/mkrupp/shopcart/internal/repo/cart"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// CartConfig contains configuration parameters for the cart service.
type CartConfig struct {
	// Driver selects the cart store backend (sqlite, redis)
	Driver string `env:"DRIVER" default:"sqlite"`

	// StoreTimeout bounds each operation's calls to the cart store, lock wait included
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" default:"2s"`
}

// CartService applies cart mutations. All operations on one user's cart are
// serialized through the repository lock.
type CartService struct {
	Config CartConfig
	Repo   cart.Repository
	Log    logging.Logger
}

// NewCartService creates a CartService backed by the repository from repoFactory.
func NewCartService(ctx context.Context, repoFactory cart.RepositoryFactory, cfg CartConfig) (*CartService, error) {
	repo, err := repoFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new cart repo: %w", err)
	}

	return &CartService{
		Config: cfg,
		Repo:   repo,
		Log:    logging.GetLogger("svc.cartsvc.cart_service"),
	}, nil
}

// CreateCart creates the user's cart holding a single line.
// Returns domain.ErrCartAlreadyExists if the user already has one.
func (s *CartService) CreateCart(
	ctx context.Context,
	userID, productID string,
	quantity int64,
	price decimal.Decimal,
) (_ domain.Cart, err error) {
	log := s.Log.With(logging.Group("cart", "user", userID, "product", productID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "create cart failed", "error", err)
		} else {
			log.DebugContext(ctx, "cart created")
		}
	}()

	if err := validUserID(userID); err != nil {
		return domain.Cart{}, err
	}

	item, err := domain.NewLineItem(productID, quantity, price)
	if err != nil {
		return domain.Cart{}, err
	}

	var created domain.Cart

	err = s.locked(ctx, userID, func(ctx context.Context) error {
		var err error

		created, err = s.Repo.Create(ctx, domain.NewCart(userID, item))

		return err
	})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}

	return created, nil
}

// GetCart returns the user's cart.
// Returns domain.ErrCartNotFound if there is none.
func (s *CartService) GetCart(ctx context.Context, userID string) (_ domain.Cart, err error) {
	log := s.Log.With(logging.Group("cart", "user", userID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "get cart failed", "error", err)
		} else {
			log.DebugContext(ctx, "cart loaded")
		}
	}()

	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	c, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", domain.StoreError(err))
	}

	return c, nil
}

// DeleteCart removes the user's cart and returns it.
// Returns domain.ErrCartNotFound if there is none.
func (s *CartService) DeleteCart(ctx context.Context, userID string) (_ domain.Cart, err error) {
	log := s.Log.With(logging.Group("cart", "user", userID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "delete cart failed", "error", err)
		} else {
			log.DebugContext(ctx, "cart deleted")
		}
	}()

	var deleted domain.Cart

	err = s.locked(ctx, userID, func(ctx context.Context) error {
		var err error

		deleted, err = s.Repo.Delete(ctx, userID)

		return err
	})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("delete cart: %w", err)
	}

	return deleted, nil
}

// AddItem adds quantity of productID to the user's cart. An existing line
// keeps its stored price and only its quantity grows; otherwise a new line is
// appended at price.
func (s *CartService) AddItem(
	ctx context.Context,
	userID, productID string,
	quantity int64,
	price decimal.Decimal,
) (_ domain.Cart, err error) {
	log := s.Log.With(logging.Group("cart", "user", userID, "product", productID, "quantity", quantity))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "add item failed", "error", err)
		} else {
			log.DebugContext(ctx, "item added")
		}
	}()

	item, err := domain.NewLineItem(productID, quantity, price)
	if err != nil {
		return domain.Cart{}, err
	}

	return s.update(ctx, userID, func(c *domain.Cart) error {
		return c.AddItem(item)
	})
}

// RemoveItem drops the line for productID from the user's cart.
// Returns domain.ErrItemNotFound if the cart has no such line.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (_ domain.Cart, err error) {
	log := s.Log.With(logging.Group("cart", "user", userID, "product", productID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "remove item failed", "error", err)
		} else {
			log.DebugContext(ctx, "item removed")
		}
	}()

	return s.update(ctx, userID, func(c *domain.Cart) error {
		return c.RemoveItem(productID)
	})
}

// Close releases the cart repository.
func (s *CartService) Close() error {
	if err := s.Repo.Close(); err != nil {
		return fmt.Errorf("close cart repo: %w", err)
	}

	return nil
}

// update is the load, modify, save cycle under the user's lock.
func (s *CartService) update(ctx context.Context, userID string, modify func(*domain.Cart) error) (domain.Cart, error) {
	var saved domain.Cart

	err := s.locked(ctx, userID, func(ctx context.Context) error {
		c, err := s.Repo.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}

		if err := modify(&c); err != nil {
			return err
		}

		if saved, err = s.Repo.Save(ctx, c); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}

		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}

	return saved, nil
}

// locked runs fn holding the user's lock, under the store timeout.
func (s *CartService) locked(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	unlock, err := s.Repo.Lock(ctx, userID)
	if err != nil {
		return domain.StoreError(err)
	}
	defer unlock()

	return domain.StoreError(fn(ctx))
}

// withStoreTimeout applies StoreTimeout; zero disables it.
func (s *CartService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.Config.StoreTimeout)
}

func validUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	}

	return nil
}
