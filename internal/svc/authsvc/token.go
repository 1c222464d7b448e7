package authsvc

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/shopcart/internal/domain"
)

// TokenClaims is the JWT payload of a session token. The subject is the user id.
type TokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies PS256-signed session tokens.
type TokenIssuer struct {
	key      *rsa.PrivateKey
	issuer   string
	duration time.Duration
	now      func() time.Time
}

// NewTokenIssuer returns an issuer whose tokens are valid for duration.
func NewTokenIssuer(key *rsa.PrivateKey, issuer string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:      key,
		issuer:   issuer,
		duration: duration,
		now:      time.Now,
	}
}

// WithClock returns a copy of the issuer that reads the time from now.
func (ti *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	c := *ti
	c.now = now

	return &c
}

// Issue signs a token for user and returns it along with its expiry.
func (ti *TokenIssuer) Issue(user domain.User) (string, time.Time, error) {
	now := ti.now().Truncate(time.Second)
	expiry := now.Add(ti.duration)

	claims := TokenClaims{
		Roles: user.Roles.Strings(),
		//nolint:exhaustruct
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodPS256, claims).SignedString(ti.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiry, nil
}

// Verify checks the signature, algorithm, issuer and time window of token
// and returns the identity it carries. Every failure wraps domain.ErrInvalidAuthToken.
func (ti *TokenIssuer) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.ErrNoAuthToken
	}

	var claims TokenClaims

	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return &ti.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodPS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return domain.Identity{}, errors.Join(domain.ErrInvalidAuthToken, err)
	}

	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: empty subject", domain.ErrInvalidAuthToken)
	}

	roles, err := domain.ParseRoles(claims.Roles)
	if err != nil {
		return domain.Identity{}, errors.Join(domain.ErrInvalidAuthToken, err)
	}

	return domain.Identity{UserID: claims.Subject, Roles: roles}, nil
}
