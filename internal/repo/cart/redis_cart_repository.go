package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mkrupp/shopcart/internal/domain"
	"github.com/mkrupp/shopcart/internal/infra/logging"
)

// RedisCartRepositoryConfig holds configuration for the Redis cart repository.
type RedisCartRepositoryConfig struct {
	// Addr is the host:port of the Redis server
	Addr string `env:"ADDR" default:"localhost:6379"`

	Password string `env:"PASSWORD" default:""`
	DB       int    `env:"DB" default:"0"`

	// KeyPrefix is prepended to the user id to form the cart key
	KeyPrefix string `env:"KEY_PREFIX" default:"cart:"`

	// LockTTL bounds how long a crashed holder can keep a cart locked
	LockTTL time.Duration `env:"LOCK_TTL" default:"10s"`

	// LockRetry is the polling interval while waiting for a held lock
	LockRetry time.Duration `env:"LOCK_RETRY" default:"10ms"`

	DialTimeout time.Duration `env:"DIAL_TIMEOUT" default:"5s"`
}

// releaseScript deletes the lock key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCartRepository implements Repository on Redis. Each cart is one JSON
// value; Save is a WATCH/MULTI compare-and-set and Lock is a SET NX lease.
type RedisCartRepository struct {
	client *redis.Client
	cfg    RedisCartRepositoryConfig
	log    logging.Logger
}

var _ Repository = (*RedisCartRepository)(nil)

// RedisCartRepositoryFactory creates a factory function that returns a new RedisCartRepository.
func RedisCartRepositoryFactory(cfg RedisCartRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewRedisCartRepository(ctx, cfg)
	}
}

// NewRedisCartRepository connects to Redis and verifies the connection.
func NewRedisCartRepository(ctx context.Context, cfg RedisCartRepositoryConfig) (*RedisCartRepository, error) {
	log := logging.GetLogger("repo.cart.redis_cart_repository").With(
		logging.Group("redis", "addr", cfg.Addr, "db", cfg.DB),
	)

	//nolint:exhaustruct
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", redisError(err))
	}

	return &RedisCartRepository{
		client: client,
		cfg:    cfg,
		log:    log,
	}, nil
}

func (r *RedisCartRepository) key(userID string) string {
	return r.cfg.KeyPrefix + userID
}

func (r *RedisCartRepository) lockKey(userID string) string {
	return r.cfg.KeyPrefix + "lock:" + userID
}

// Lock implements Repository.Lock with a lease that expires after LockTTL.
func (r *RedisCartRepository) Lock(ctx context.Context, userID string) (func(), error) {
	key := r.lockKey(userID)
	token := uuid.NewString()

	ticker := time.NewTicker(r.cfg.LockRetry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.LockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock cart %s: %w", userID, redisError(err))
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock cart %s: %w", userID, domain.StoreError(ctx.Err()))
		case <-ticker.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DialTimeout)
		defer cancel()

		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			r.log.WarnContext(ctx, "release cart lock failed", "user.id", userID, "error", err)
		}
	}, nil
}

// Create implements Repository.Create.
func (r *RedisCartRepository) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ts := now()
	cart = cart.Clone()
	cart.Version = 1
	cart.CreatedAt = ts
	cart.UpdatedAt = ts

	data, err := json.Marshal(newCartRecord(cart))
	if err != nil {
		return domain.Cart{}, fmt.Errorf("encode cart: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(cart.UserID), data, 0).Result()
	if err != nil {
		return domain.Cart{}, fmt.Errorf("set cart: %w", redisError(err))
	} else if !ok {
		return domain.Cart{}, fmt.Errorf("%w: %s", domain.ErrCartAlreadyExists, cart.UserID)
	}

	return cart, nil
}

// Get implements Repository.Get.
func (r *RedisCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err != nil {
		return domain.Cart{}, r.readError(userID, err)
	}

	return decodeCart(data)
}

// Save implements Repository.Save. The write is discarded if the key changed
// after it was watched.
func (r *RedisCartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	key := r.key(cart.UserID)
	cart = cart.Clone()
	expected := cart.Version
	cart.Version++
	cart.UpdatedAt = now()

	data, err := json.Marshal(newCartRecord(cart))
	if err != nil {
		return domain.Cart{}, fmt.Errorf("encode cart: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return r.readError(cart.UserID, err)
		}

		stored, err := decodeCart(raw)
		if err != nil {
			return err
		}

		if stored.Version != expected {
			return fmt.Errorf("%w: have %d, stored %d", domain.ErrCartVersionMismatch, expected, stored.Version)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			return nil
		})

		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return domain.Cart{}, errors.Join(domain.ErrCartVersionMismatch, err)
	case err != nil:
		return domain.Cart{}, fmt.Errorf("save cart: %w", redisError(err))
	}

	return cart, nil
}

// Delete implements Repository.Delete.
func (r *RedisCartRepository) Delete(ctx context.Context, userID string) (domain.Cart, error) {
	data, err := r.client.GetDel(ctx, r.key(userID)).Bytes()
	if err != nil {
		return domain.Cart{}, r.readError(userID, err)
	}

	return decodeCart(data)
}

// Close implements Repository.Close.
func (r *RedisCartRepository) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}

	return nil
}

func (r *RedisCartRepository) readError(userID string, err error) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", domain.ErrCartNotFound, userID)
	}

	return fmt.Errorf("get cart: %w", redisError(err))
}

// redisError tags connection failures with the matching error kind.
func redisError(err error) error {
	var netErr net.Error

	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.StoreError(err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return errors.Join(domain.ErrTimeout, err)
	case errors.As(err, &netErr), errors.Is(err, redis.ErrClosed):
		return errors.Join(domain.ErrUnavailable, err)
	default:
		return err
	}
}

// cartRecord is the stored JSON shape of a cart.
type cartRecord struct {
	UserID     string           `json:"userId"`
	Items      []lineItemRecord `json:"items"`
	TotalPrice string           `json:"totalPrice"`
	Version    uint64           `json:"version"`
	CreatedAt  int64            `json:"createdAt"` // unix millis
	UpdatedAt  int64            `json:"updatedAt"` // unix millis
}

type lineItemRecord struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

func newCartRecord(cart domain.Cart) cartRecord {
	items := make([]lineItemRecord, len(cart.Items))
	for i, it := range cart.Items {
		items[i] = lineItemRecord{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.String(),
			Subtotal:  it.Subtotal.String(),
		}
	}

	return cartRecord{
		UserID:     cart.UserID,
		Items:      items,
		TotalPrice: cart.TotalPrice.String(),
		Version:    cart.Version,
		CreatedAt:  cart.CreatedAt.UnixMilli(),
		UpdatedAt:  cart.UpdatedAt.UnixMilli(),
	}
}

func (rec cartRecord) toDomain() (domain.Cart, error) {
	total, err := decimal.NewFromString(rec.TotalPrice)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("parse total price: %w", err)
	}

	cart := domain.Cart{
		UserID:     rec.UserID,
		Items:      make([]domain.LineItem, len(rec.Items)),
		TotalPrice: total,
		Version:    rec.Version,
		CreatedAt:  time.UnixMilli(rec.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(rec.UpdatedAt).UTC(),
	}

	for i, it := range rec.Items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("parse price of %s: %w", it.ProductID, err)
		}

		subtotal, err := decimal.NewFromString(it.Subtotal)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("parse subtotal of %s: %w", it.ProductID, err)
		}

		cart.Items[i] = domain.LineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     price,
			Subtotal:  subtotal,
		}
	}

	return cart, nil
}

func decodeCart(data []byte) (domain.Cart, error) {
	var rec cartRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart: %w", err)
	}

	return rec.toDomain()
}
