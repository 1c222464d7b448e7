package cartsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mkrupp/shopcart/internal/domain"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	http_ "github.com/mkrupp/shopcart/internal/infra/transport/http"
	"github.com/mkrupp/shopcart/internal/svc/authsvc/authclient"
)

// ErrNoAuthClient is returned when a role is required but no auth client is configured.
var ErrNoAuthClient = errors.New("role required without auth client")

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig

	// ServerAddr shadows the shared default so authsvc and cartsvc can run side by side
	ServerAddr string `env:"SERVER_ADDR" default:":8081"`

	// RequireRole guards every route with token verification and this role. Empty disables the gate.
	RequireRole string `env:"REQUIRE_ROLE" default:""`
}

// Server returns the shared server settings with this service's listen address.
func (cfg HTTPTransportConfig) Server() http_.HTTPTransportConfig {
	server := cfg.HTTPTransportConfig
	server.ServerAddr = cfg.ServerAddr

	return server
}

// Quantity is an item count that decodes from a JSON number or a numeric string.
type Quantity int64

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var raw json.Number
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		raw = json.Number(s)
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("quantity %q: %w", raw, err)
	}

	*q = Quantity(n)

	return nil
}

// ItemRequest is the body of the create-cart and add-item routes.
type ItemRequest struct {
	ProductID string           `json:"productId"`
	Quantity  Quantity         `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
}

func (req ItemRequest) price() (decimal.Decimal, error) {
	if req.Price == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price is required", domain.ErrInvalidArgument)
	}

	return *req.Price, nil
}

// HTTPTransport handles HTTP requests for the cart service.
type HTTPTransport struct {
	cartSvc *CartService
	log     logging.Logger
	cfg     HTTPTransportConfig
	mux     *http.ServeMux
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport and sets up the routes:
//   - POST /carts/{user_id}: create a cart with its first item
//   - GET /carts/{user_id}: get a cart
//   - DELETE /carts/{user_id}: delete a cart
//   - POST /carts/{user_id}/items: add an item
//   - DELETE /carts/{user_id}/items/{product_id}: remove an item
//
// authClient is only used when cfg.RequireRole is set.
func NewHTTPTransport(cartSvc *CartService, authClient authclient.AuthClient, cfg HTTPTransportConfig) (*HTTPTransport, error) {
	ht := &HTTPTransport{
		cartSvc: cartSvc,
		log:     logging.GetLogger("svc.cartsvc.http_transport"),
		cfg:     cfg,
		mux:     http.NewServeMux(),
	}

	var gates []http_.Gate

	if cfg.RequireRole != "" {
		role, err := domain.ParseRole(cfg.RequireRole)
		if err != nil {
			return nil, fmt.Errorf("parse required role: %w", err)
		} else if authClient == nil {
			return nil, ErrNoAuthClient
		}

		gates = http_.Guard(authClient, role, ht.log)
	}

	handle := func(pattern string, h http.HandlerFunc) {
		ht.mux.Handle(pattern, http_.Chain(h, gates...))
	}

	handle("POST /carts/{user_id}", ht.HandleCreateCart)
	handle("GET /carts/{user_id}", ht.HandleGetCart)
	handle("DELETE /carts/{user_id}", ht.HandleDeleteCart)
	handle("POST /carts/{user_id}/items", ht.HandleAddItem)
	handle("DELETE /carts/{user_id}/items/{product_id}", ht.HandleRemoveItem)

	return ht, nil
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

// HandleCreateCart creates the cart from a JSON ItemRequest and replies 201.
func (ht *HTTPTransport) HandleCreateCart(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "create cart", http.StatusCreated, func(ctx context.Context) (domain.Cart, error) {
		var req ItemRequest
		if err := http_.DecodeJSON(w, r, &req); err != nil {
			return domain.Cart{}, fmt.Errorf("decode request: %w", err)
		}

		price, err := req.price()
		if err != nil {
			return domain.Cart{}, err
		}

		return ht.cartSvc.CreateCart(ctx, r.PathValue("user_id"), req.ProductID, int64(req.Quantity), price)
	})
}

// HandleGetCart replies with the cart.
func (ht *HTTPTransport) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "get cart", http.StatusOK, func(ctx context.Context) (domain.Cart, error) {
		return ht.cartSvc.GetCart(ctx, r.PathValue("user_id"))
	})
}

// HandleDeleteCart deletes the cart and replies with what was deleted.
func (ht *HTTPTransport) HandleDeleteCart(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "delete cart", http.StatusOK, func(ctx context.Context) (domain.Cart, error) {
		return ht.cartSvc.DeleteCart(ctx, r.PathValue("user_id"))
	})
}

// HandleAddItem adds the item from a JSON ItemRequest and replies with the updated cart.
func (ht *HTTPTransport) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "add item", http.StatusOK, func(ctx context.Context) (domain.Cart, error) {
		var req ItemRequest
		if err := http_.DecodeJSON(w, r, &req); err != nil {
			return domain.Cart{}, fmt.Errorf("decode request: %w", err)
		}

		price, err := req.price()
		if err != nil {
			return domain.Cart{}, err
		}

		return ht.cartSvc.AddItem(ctx, r.PathValue("user_id"), req.ProductID, int64(req.Quantity), price)
	})
}

// HandleRemoveItem removes a line and replies with the updated cart.
func (ht *HTTPTransport) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "remove item", http.StatusOK, func(ctx context.Context) (domain.Cart, error) {
		return ht.cartSvc.RemoveItem(ctx, r.PathValue("user_id"), r.PathValue("product_id"))
	})
}

func (ht *HTTPTransport) serve(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	status int,
	fn func(ctx context.Context) (domain.Cart, error),
) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	c, err := fn(r.Context())
	if err != nil {
		log.ErrorContext(r.Context(), op+" failed", "error", err)
		http_.WriteError(w, err)

		return
	}

	log.DebugContext(r.Context(), op+" done")
	http_.WriteJSON(w, status, c)
}
