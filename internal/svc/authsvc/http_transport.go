package authsvc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mkrupp/shopcart/internal/domain"
	context_ "github.com/mkrupp/shopcart/internal/infra/context"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	http_ "github.com/mkrupp/shopcart/internal/infra/transport/http"
)

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HTTPTransport handles HTTP requests for the authentication service.
type HTTPTransport struct {
	authSvc *AuthService
	log     logging.Logger
	cfg     HTTPTransportConfig
	mux     *http.ServeMux
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport and sets up the routes:
//   - POST /auth/register: register a new user
//   - POST /auth/login: log in and get a session token
//   - POST /auth/validate: validate a Bearer token and return its identity
//   - GET /auth/user: identity of a caller holding the user role
//   - GET /auth/admin: identity of a caller holding the admin role
func NewHTTPTransport(authSvc *AuthService, cfg HTTPTransportConfig) *HTTPTransport {
	ht := &HTTPTransport{
		authSvc: authSvc,
		log:     logging.GetLogger("svc.authsvc.http_transport"),
		cfg:     cfg,
		mux:     http.NewServeMux(),
	}

	ht.mux.HandleFunc("POST /auth/register", ht.HandleRegister)
	ht.mux.HandleFunc("POST /auth/login", ht.HandleLogin)
	ht.mux.Handle("POST /auth/validate", http_.Chain(
		http.HandlerFunc(ht.HandleIdentity),
		http_.Authenticate(authSvc, ht.log),
	))
	ht.mux.Handle("GET /auth/user", http_.Chain(
		http.HandlerFunc(ht.HandleIdentity),
		http_.Guard(authSvc, domain.RoleUser, ht.log)...,
	))
	ht.mux.Handle("GET /auth/admin", http_.Chain(
		http.HandlerFunc(ht.HandleIdentity),
		http_.Guard(authSvc, domain.RoleAdmin, ht.log)...,
	))

	return ht
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

// HandleRegister processes user registration requests.
// Expects a JSON RegisterRequest and replies 201 with the created user.
func (ht *HTTPTransport) HandleRegister(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleRegister(w, r)
}

func (ht *HTTPTransport) handleRegister(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			http_.WriteError(w, err)
			log.ErrorContext(ctx, "user register failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered")
		}
	}(r.Context())

	var req RegisterRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	created, err := ht.authSvc.RegisterUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}

	http_.WriteJSON(w, http.StatusCreated, created)

	return nil
}

// HandleLogin processes user login requests.
// Expects a JSON LoginRequest and replies with a domain.AuthTokenResponse.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleLogin(w, r)
}

func (ht *HTTPTransport) handleLogin(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			http_.WriteError(w, err)
			log.ErrorContext(ctx, "user login failed", "error", err)
		} else {
			log.DebugContext(ctx, "user logged in")
		}
	}(r.Context())

	var req LoginRequest
	if err := http_.DecodeJSON(w, r, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	if req.Username == "" || req.Password == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrInvalidArgument)
	}

	token, err := ht.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return fmt.Errorf("login user: %w", err)
	}

	http_.WriteJSON(w, http.StatusOK, token)

	return nil
}

// HandleIdentity replies with the identity the gate stored in the request context.
func (ht *HTTPTransport) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	identity, ok := context_.IdentityFromContext(r.Context())
	if !ok {
		ht.log.ErrorContext(r.Context(), "identity handler reached without gate")
		http_.WriteError(w, domain.ErrNoAuthToken)

		return
	}

	http_.WriteJSON(w, http.StatusOK, identity)
}
