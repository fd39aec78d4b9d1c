package jobserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// KeyValidator checks a bearer token and resolves the calling user.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, bearerToken string) (*AuthResult, error)
}

// RequireAPIKey wraps an MCP HTTP handler with bearer-token auth. Failures
// answer in JSON-RPC error form since that is what MCP clients parse.
func RequireAPIKey(validator KeyValidator, log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeRPCError(w, http.StatusUnauthorized, -32001, "Missing Authorization header")
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			writeRPCError(w, http.StatusUnauthorized, -32001, "Invalid Authorization format, expected: Bearer <api-key>")
			return
		}

		result, err := validator.ValidateAPIKey(r.Context(), auth)
		if err != nil {
			log.WarnContext(r.Context(), "auth failed", "error", err)
			// Distinguish user-status errors (403) from key errors (401)
			if strings.Contains(err.Error(), "user account is") {
				writeRPCError(w, http.StatusForbidden, -32001, err.Error())
				return
			}
			writeRPCError(w, http.StatusUnauthorized, -32001, "Invalid API key")
			return
		}

		log.InfoContext(r.Context(), "authenticated", "user_id", result.UserID, "key_id", result.KeyID)
		next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), *result)))
	})
}

// writeRPCError answers with a JSON-RPC error envelope. The request id is
// unknown at the transport layer, so it is null per the JSON-RPC spec.
func writeRPCError(w http.ResponseWriter, httpStatus, code int, message string) {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	body, _ := json.Marshal(resp)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	w.Write(body)
}
