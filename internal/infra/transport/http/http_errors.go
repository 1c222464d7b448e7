package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mkrupp/shopcart/internal/domain"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

//nolint:gochecknoglobals
var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrConflict, http.StatusConflict, "CONFLICT"},
	{domain.ErrTimeout, http.StatusGatewayTimeout, "TIMEOUT"},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// StatusFromError maps an error kind to its HTTP status and stable error code.
// Unknown errors are internal.
func StatusFromError(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.status, k.code
		}
	}

	return http.StatusInternalServerError, "INTERNAL"
}

// WriteError replies with the status for err. Only the status text is sent;
// the error itself stays in the server logs.
func WriteError(w http.ResponseWriter, err error) {
	status, code := StatusFromError(err)

	WriteJSON(w, status, ErrorResponse{Error: code, Message: http.StatusText(status)})
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a single JSON object from the request body into v.
// Malformed bodies are reported as domain.ErrInvalidArgument.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}

		return errors.Join(domain.ErrInvalidArgument, fmt.Errorf("decode body: %w", err))
	}

	return nil
}
