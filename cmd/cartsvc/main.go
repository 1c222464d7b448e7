package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/mkrupp/shopcart/internal/infra/config"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	"github.com/mkrupp/shopcart/internal/infra/transport/http"
	"github.com/mkrupp/shopcart/internal/repo/cart"
	"github.com/mkrupp/shopcart/internal/svc/authsvc/authclient"
	"github.com/mkrupp/shopcart/internal/svc/cartsvc"
)

const (
	appName = "shopcart"
	svcName = "cartsvc"
)

type Config struct {
	config.EnvConfig

	Log        logging.LoggerConfig            `envPrefix:"LOG_"`
	Cart       cartsvc.CartConfig              `envPrefix:"CART_"`
	CartHTTP   cartsvc.HTTPTransportConfig     `envPrefix:"CART_HTTP_"`
	AuthClient authclient.HTTPClientConfig     `envPrefix:"AUTH_CLIENT_"`
	DB         cart.SQLiteCartRepositoryConfig `envPrefix:"DB_"`
	Redis      cart.RedisCartRepositoryConfig  `envPrefix:"REDIS_"`
}

func main() {
	var (
		cfg Config

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	// prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	err := run(ctx, cfg)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.cartsvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	repoFactory, err := cartRepositoryFactory(cfg)
	if err != nil {
		return err
	}

	cartSvc, err := cartsvc.NewCartService(ctx, repoFactory, cfg.Cart)
	if err != nil {
		return fmt.Errorf("new cart service: %w", err)
	}
	defer cartSvc.Close()

	authClient := authclient.NewHTTPClient(cfg.AuthClient, nil)

	httpTransport, err := cartsvc.NewHTTPTransport(cartSvc, authClient, cfg.CartHTTP)
	if err != nil {
		return fmt.Errorf("new http transport: %w", err)
	}

	if err := http.ListenAndServe(ctx, httpTransport, cfg.CartHTTP.Server()); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

func cartRepositoryFactory(cfg Config) (cart.RepositoryFactory, error) {
	switch cfg.Cart.Driver {
	case cartsvc.DriverSQLite:
		return cart.SQLiteCartRepositoryFactory(cfg.DB), nil
	case cartsvc.DriverRedis:
		return cart.RedisCartRepositoryFactory(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown cart driver %q", cfg.Cart.Driver)
	}
}
