package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mkrupp/shopcart/internal/domain"
	context_ "github.com/mkrupp/shopcart/internal/infra/context"
	"github.com/mkrupp/shopcart/internal/infra/logging"
)

const (
	TraceIDHeader       = "X-Request-ID"
	AuthorizationHeader = "Authorization"
)

// HTTPClientConfig holds configuration for the HTTP auth client.
type HTTPClientConfig struct {
	// AuthURL is the endpoint for token validation requests
	AuthURL string `env:"AUTH_URL" default:"http://localhost:8080/auth/validate"`

	// Timeout bounds each validation round trip
	Timeout time.Duration `env:"TIMEOUT" default:"3s"`
}

// HTTPClient implements AuthClient by asking the auth service to validate tokens.
type HTTPClient struct {
	httpClient *http.Client
	log        logging.Logger
	cfg        HTTPClientConfig
}

var _ AuthClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTPClient with the given configuration.
// If httpClient is nil, a client with the configured timeout is used.
func NewHTTPClient(
	cfg HTTPClientConfig,
	httpClient *http.Client,
) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPClient{
		httpClient: httpClient,
		log:        logging.GetLogger("svc.authsvc.authclient.http_client"),
		cfg:        cfg,
	}
}

// Validate implements AuthClient.Validate. The token is forwarded as a Bearer
// Authorization header along with the current trace ID.
func (hc *HTTPClient) Validate(ctx context.Context, token string) (_ domain.Identity, err error) {
	defer func() {
		if err != nil {
			hc.log.DebugContext(ctx, "remote token validation failed", "error", err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.cfg.AuthURL, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set(AuthorizationHeader, "Bearer "+token)

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		req.Header.Set(TraceIDHeader, traceID)
	}

	resp, err := hc.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Identity{}, errors.Join(domain.ErrTimeout, err)
		}

		return domain.Identity{}, errors.Join(domain.ErrUnavailable, fmt.Errorf("post: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.Identity{}, domain.ErrInvalidAuthToken
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.Identity{}, fmt.Errorf("%w: auth service status %d", domain.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.Identity{}, fmt.Errorf("%w: auth service status %d", domain.ErrInvalidAuthToken, resp.StatusCode)
	}

	var identity domain.Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return domain.Identity{}, fmt.Errorf("decode identity: %w", err)
	}

	return identity, nil
}
