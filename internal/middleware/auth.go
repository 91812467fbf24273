package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/services"
)

type contextKey string

const authUserIDKey contextKey = "auth_user_id"

// ExtractBearerToken pulls the token from an Authorization header, falling
// back to the `token` query parameter for browser WebSocket clients which
// cannot set headers.
func ExtractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// RequireSession resolves the caller's identity from the session token before
// any core operation runs. The authenticated user id travels in the request
// context; handlers never consult ambient login state.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r)
		if token == "" {
			http.Error(w, "missing session token", http.StatusUnauthorized)
			return
		}

		userID, ok, err := services.ValidateSession(token)
		if err != nil || !ok {
			http.Error(w, "invalid session token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), authUserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthenticatedUserID returns the user id RequireSession stored in ctx.
func AuthenticatedUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(authUserIDKey).(uuid.UUID)
	return id, ok
}
