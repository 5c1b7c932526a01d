package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tieredmedia/images-service/internal/utils/jwt"
	"github.com/tieredmedia/images-service/internal/utils/response"
)

type contextKey string

const UserIDKey contextKey = "userID"

// RequireAuth validates the bearer token and puts the user ID on the
// request context. Unauthenticated requests get a 403, matching the
// listing contract.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userIDFromRequest(r, jwtSecret)
			if err != nil {
				response.WriteJSON(w, http.StatusForbidden, response.GeneralError(err))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth populates the user ID when a valid bearer token is present
// and otherwise lets the request through anonymous. The upload pipeline
// reports its own unauthorized error as a 400-class response.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userIDFromRequest(r, jwtSecret)
			if err == nil {
				ctx := context.WithValue(r.Context(), UserIDKey, userID)
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func userIDFromRequest(r *http.Request, jwtSecret string) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header required")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", errors.New("token not provided")
	}

	userID, err := jwt.ExtractUserIDFromToken(token, jwtSecret)
	if err != nil {
		return "", errors.New("invalid token")
	}

	return userID, nil
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}
