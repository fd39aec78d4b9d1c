package jobserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	result *AuthResult
	err    error
}

func (s stubValidator) ValidateAPIKey(context.Context, string) (*AuthResult, error) {
	return s.result, s.err
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runMiddleware(t *testing.T, v KeyValidator, authHeader string) (*httptest.ResponseRecorder, *AuthResult) {
	t.Helper()

	var seen *AuthResult
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := AuthFromContext(r.Context())
		seen = &res
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	RequireAPIKey(v, quietLog(), next).ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireAPIKeyMissingHeader(t *testing.T) {
	rec, seen := runMiddleware(t, stubValidator{}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen, "next handler must not run")

	var body struct {
		JSONRPC string `json:"jsonrpc"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2.0", body.JSONRPC)
	assert.Equal(t, -32001, body.Error.Code)
	assert.Contains(t, body.Error.Message, "Authorization")
}

func TestRequireAPIKeyBadScheme(t *testing.T) {
	rec, seen := runMiddleware(t, stubValidator{}, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)
}

func TestRequireAPIKeyInvalidKey(t *testing.T) {
	v := stubValidator{err: errors.New("API key not found")}
	rec, seen := runMiddleware(t, v, "Bearer pk_bogus")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)
	assert.Contains(t, rec.Body.String(), "Invalid API key")
}

func TestRequireAPIKeySuspendedUser(t *testing.T) {
	v := stubValidator{err: errors.New("user account is suspended")}
	rec, _ := runMiddleware(t, v, "Bearer pk_whatever")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "suspended")
}

func TestRequireAPIKeyPassesAuthToHandler(t *testing.T) {
	v := stubValidator{result: &AuthResult{
		Authenticated: true,
		UserID:        "u-9",
		Role:          "user",
		KeyID:         "cafe0123",
	}}
	rec, seen := runMiddleware(t, v, "Bearer pk_valid")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.True(t, seen.Authenticated)
	assert.Equal(t, "u-9", seen.UserID)
	assert.Equal(t, "cafe0123", seen.KeyID)
}
