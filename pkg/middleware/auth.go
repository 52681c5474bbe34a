package middleware

import (
	"context"
	"net/http"
	"strings"

	"chaty/pkg/logging"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// TokenValidator resolves an access token to its user id.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware accepts a bearer token from the Authorization header, or
// from the "token" query parameter for browser websocket handshakes.
func AuthMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}
			userID, err := tokens.ValidateToken(raw)
			if err != nil {
				logging.FromContext(r.Context(), nil).DebugContext(r.Context(), "auth - validate token - rejected", logging.Err(err))
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx, _ = logging.With(ctx, nil, logging.User(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id stored by AuthMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return token, true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"Unauthorized."}`))
}
