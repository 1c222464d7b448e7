package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkrupp/shopcart/internal/domain"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	"github.com/mkrupp/shopcart/internal/repo/user"
	"github.com/mkrupp/shopcart/internal/svc/authsvc/authclient"
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SigningKeyFile is the path to the RSA private key file
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/authsvc.key"`

	// TokenDuration is the validity duration of session tokens
	TokenDuration time.Duration `env:"TOKEN_DURATION" default:"1h"`

	// Issuer is written to and required in the iss claim
	Issuer string `env:"ISSUER" default:"shopcart-authsvc"`

	// Hasher selects the algorithm for new password hashes (argon2id, bcrypt)
	Hasher string `env:"HASHER" default:"argon2id"`

	// DefaultRoles are assigned to every newly registered user
	DefaultRoles []string `env:"DEFAULT_ROLES" default:"user"`
}

// AuthService provides user registration, login and token validation.
type AuthService struct {
	UserRepo     user.Repository
	Log          logging.Logger
	Hasher       PasswordHasher
	Tokens       *TokenIssuer
	DefaultRoles domain.Roles

	// dummyHash is verified against when the user does not exist, so that
	// unknown users and wrong passwords take the same time.
	dummyHash string
}

var _ authclient.AuthClient = (*AuthService)(nil)

// NewAuthService creates a new AuthService with the given user repository factory and configuration.
// Returns an error if the signing key cannot be loaded or the user repository cannot be created.
func NewAuthService(ctx context.Context, repoFactory user.RepositoryFactory, cfg AuthConfig) (*AuthService, error) {
	hasher, err := NewPasswordHasher(cfg.Hasher)
	if err != nil {
		return nil, fmt.Errorf("new password hasher: %w", err)
	}

	roles, err := domain.ParseRoles(cfg.DefaultRoles)
	if err != nil {
		return nil, fmt.Errorf("parse default roles: %w", err)
	} else if len(roles) == 0 {
		return nil, fmt.Errorf("parse default roles: %w: empty", domain.ErrUnknownRole)
	}

	signingKey, err := GetPrivateKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	userRepo, err := repoFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new user repo: %w", err)
	}

	return New(userRepo, hasher, NewTokenIssuer(signingKey, cfg.Issuer, cfg.TokenDuration), roles)
}

// New assembles an AuthService from its parts.
func New(userRepo user.Repository, hasher PasswordHasher, tokens *TokenIssuer, defaultRoles domain.Roles) (*AuthService, error) {
	dummyHash, err := hasher.Hash("not-a-password")
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &AuthService{
		UserRepo:     userRepo,
		Log:          logging.GetLogger("svc.authsvc.auth_service"),
		Hasher:       hasher,
		Tokens:       tokens,
		DefaultRoles: defaultRoles,
		dummyHash:    dummyHash,
	}, nil
}

// RegisterUser creates a new account with the default roles. The password is
// hashed before storage and never returned.
// Returns domain.ErrUserAlreadyExists if the username or email is taken.
func (s *AuthService) RegisterUser(ctx context.Context, username, email, password string) (_ domain.User, err error) {
	log := s.Log.With(logging.Group("user", "username", username))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "register user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered")
		}
	}()

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username, email and password are required", domain.ErrInvalidArgument)
	}

	passwordHash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	//nolint:exhaustruct
	created, err := s.UserRepo.CreateUser(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        s.DefaultRoles,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	log = log.With(logging.Group("user", "id", created.ID))

	return created, nil
}

// Login authenticates a user and returns a signed session token and its expiry.
// An unknown username and a wrong password both fail with domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (_ domain.AuthTokenResponse, err error) {
	log := s.Log.With(logging.Group("user", "username", username))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "login failed", "error", err)
		} else {
			log.DebugContext(ctx, "login successful")
		}
	}()

	u, err := s.UserRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return domain.AuthTokenResponse{}, fmt.Errorf("get user: %w", err)
		}

		_, _ = VerifyPassword(password, s.dummyHash)
		log = log.With("cause", err.Error())

		return domain.AuthTokenResponse{}, domain.ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("verify password: %w", err)
	} else if !ok {
		return domain.AuthTokenResponse{}, domain.ErrInvalidCredentials
	}

	token, expiry, err := s.Tokens.Issue(u)
	if err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	log = log.With(logging.Group("token",
		"sub", u.ID,
		"roles", u.Roles.String(),
		"exp", expiry.UTC().Format(time.RFC3339),
	))

	return domain.AuthTokenResponse{Token: token, ExpiresAt: expiry.Unix()}, nil
}

// Validate verifies a session token and returns the identity it carries.
// It implements authclient.AuthClient for in-process use.
func (s *AuthService) Validate(ctx context.Context, token string) (identity domain.Identity, err error) {
	log := s.Log

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "validate token failed", "error", err)
		} else {
			log.DebugContext(ctx, "token validated", "sub", identity.UserID)
		}
	}()

	identity, err = s.Tokens.Verify(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	return identity, nil
}

// Close releases resources held by the service, such as database connections.
func (s *AuthService) Close() error {
	if err := s.UserRepo.Close(); err != nil {
		return fmt.Errorf("close user repo: %w", err)
	}

	return nil
}
