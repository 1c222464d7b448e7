package authsvc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/shopcart/internal/domain"
	http_ "github.com/mkrupp/shopcart/internal/infra/transport/http"
	"github.com/mkrupp/shopcart/internal/svc/authsvc"
	"github.com/mkrupp/shopcart/internal/svc/authsvc/authclient"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	svc, _ := setupTestService(t)
	srv := httptest.NewServer(authsvc.NewHTTPTransport(svc, authsvc.HTTPTransportConfig{}))
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, &buf)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, out.Bytes()
}

func TestHTTPTransport_Flow(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	register := authsvc.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"}

	resp, body := do(t, srv, http.MethodPost, "/auth/register", "", register)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.NotContains(t, string(body), "pw\"")
	assert.NotContains(t, string(body), "passwordHash")

	var created domain.User
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, domain.Roles{domain.RoleUser}, created.Roles)

	resp, body = do(t, srv, http.MethodPost, "/auth/register", "", register)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var errResp http_.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "CONFLICT", errResp.Error)

	resp, _ = do(t, srv, http.MethodPost, "/auth/login", "", authsvc.LoginRequest{Username: "alice", Password: "nope"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/auth/login", "", authsvc.LoginRequest{Username: "mallory", Password: "pw"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/auth/login", "", authsvc.LoginRequest{Username: "alice", Password: "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var token domain.AuthTokenResponse
	require.NoError(t, json.Unmarshal(body, &token))
	require.NotEmpty(t, token.Token)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"user route with user token", http.MethodGet, "/auth/user", token.Token, http.StatusOK},
		{"admin route with user token", http.MethodGet, "/auth/admin", token.Token, http.StatusForbidden},
		{"user route without token", http.MethodGet, "/auth/user", "", http.StatusUnauthorized},
		{"admin route with garbage", http.MethodGet, "/auth/admin", "garbage", http.StatusUnauthorized},
		{"validate", http.MethodPost, "/auth/validate", token.Token, http.StatusOK},
		{"validate without token", http.MethodPost, "/auth/validate", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		resp, body := do(t, srv, tt.method, tt.path, tt.token, nil)
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, resp.StatusCode, tt.wantStatus, body)

			continue
		}

		if tt.wantStatus == http.StatusOK {
			var identity domain.Identity
			require.NoError(t, json.Unmarshal(body, &identity))
			assert.Equal(t, created.ID, identity.UserID, tt.name)
		}
	}
}

func TestHTTPTransport_BadRequests(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"register missing email", "/auth/register", map[string]string{"username": "a", "password": "b"}},
		{"register unknown field", "/auth/register", map[string]string{"username": "a", "email": "e", "password": "b", "role": "admin"}},
		{"login missing password", "/auth/login", map[string]string{"username": "a"}},
		{"login empty body", "/auth/login", nil},
	}

	for _, tt := range tests {
		resp, body := do(t, srv, http.MethodPost, tt.path, "", tt.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (%s)", tt.name, resp.StatusCode, body)
		}
	}
}

// The HTTP auth client validates tokens against a live authsvc transport.
func TestHTTPClient_AgainstTransport(t *testing.T) {
	t.Parallel()

	svc, _ := setupTestService(t, domain.RoleAdmin)
	srv := httptest.NewServer(authsvc.NewHTTPTransport(svc, authsvc.HTTPTransportConfig{}))
	t.Cleanup(srv.Close)

	ctx := context.Background()

	created, err := svc.RegisterUser(ctx, "root", "root@example.com", "pw")
	require.NoError(t, err)

	token, err := svc.Login(ctx, "root", "pw")
	require.NoError(t, err)

	client := authclient.NewHTTPClient(authclient.HTTPClientConfig{
		AuthURL: srv.URL + "/auth/validate",
		Timeout: time.Second,
	}, srv.Client())

	identity, err := authclient.Evaluate(ctx, client, token.Token, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, created.ID, identity.UserID)

	_, err = authclient.Evaluate(ctx, client, token.Token, domain.RoleUser)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = authclient.Evaluate(ctx, client, "forged", domain.RoleAdmin)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, errors.Is(err, domain.ErrForbidden))
}
