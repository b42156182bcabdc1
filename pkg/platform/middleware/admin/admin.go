// Package admin guards the operator endpoints with a shared token.
package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	dErrors "recibos/pkg/domain-errors"
	metadata "recibos/pkg/platform/middleware/metadata"
	request "recibos/pkg/platform/middleware/request"
)

// HeaderAdminToken carries the operator token.
const HeaderAdminToken = "X-Admin-Token"

// Verifier reports whether a presented token is acceptable.
type Verifier func(token string) bool

// PlainToken compares in constant time against a configured token. An empty
// expected token yields nil, which disables the guard.
func PlainToken(expected string) Verifier {
	if expected == "" {
		return nil
	}
	return func(token string) bool {
		return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
	}
}

// HashedToken checks against a bcrypt hash produced by HashToken. An empty
// hash yields nil.
func HashedToken(hash string) Verifier {
	if hash == "" {
		return nil
	}
	return func(token string) bool {
		return token != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
	}
}

// HashToken produces the bcrypt hash stored as server.admin_token_hash.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", dErrors.New(dErrors.CodeValidation, "token cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "token is too long")
		}
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hashed), nil
}

// RequireAdminToken rejects requests whose X-Admin-Token fails verify. A nil
// verify disables the check.
func RequireAdminToken(verify Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verify == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verify(r.Header.Get(HeaderAdminToken)) {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
					"client_ip", metadata.GetClientIP(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
