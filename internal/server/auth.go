package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/medchat-go/internal/logging"
)

// authChallenge is sent with every 401.
const authChallenge = `Bearer realm="medchat"`

// authMiddleware enforces "Authorization: Bearer <apiKey>". An empty apiKey
// disables auth; New logs a warning once at startup in that case.
//
// Failures get 401 with a WWW-Authenticate challenge and a JSON error body.
// Tokens are compared in constant time and never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token != "" && subtle.ConstantTimeCompare([]byte(token), want) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		challenge, msg := authChallenge, "authorization required"
		if token != "" {
			challenge += ` error="invalid_token"`
			msg = "invalid token"
		}
		logging.FromContext(r.Context()).Warn("auth: request rejected",
			slog.String("path", r.URL.Path),
			slog.Bool("token_present", token != ""),
		)
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, r, http.StatusUnauthorized, msg)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive. Returns "" if the header is absent
// or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
