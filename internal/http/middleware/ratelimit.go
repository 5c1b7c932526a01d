package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/tieredmedia/images-service/internal/ratelimit"
	"github.com/tieredmedia/images-service/internal/utils/response"
)

// ActionUploads is the rate-limited upload action.
const ActionUploads = "uploads"

type RateLimitConfig struct {
	limiters map[string]*ratelimit.TokenBucket
	limits   map[string]int64
}

func NewRateLimitConfig(redisClient *redis.Client, uploadsPerMinute int64) *RateLimitConfig {
	config := &RateLimitConfig{
		limiters: make(map[string]*ratelimit.TokenBucket),
		limits:   make(map[string]int64),
	}

	config.limiters[ActionUploads] = ratelimit.NewTokenBucket(redisClient, uploadsPerMinute, uploadsPerMinute)
	config.limits[ActionUploads] = uploadsPerMinute

	return config
}

// RateLimitMiddleware enforces the per-user budget for an action.
// Anonymous requests pass through; the handler rejects them on its own
// terms.
func (rlc *RateLimitConfig) RateLimitMiddleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			limiter, exists := rlc.limiters[action]
			if !exists {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), userID, action)
			if err != nil {
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(
					fmt.Errorf("rate limit check failed: %w", err)))
				return
			}

			remaining, _ := limiter.GetRemaining(r.Context(), userID, action)
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rlc.limits[action], 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", "60")

			if !allowed {
				response.WriteJSON(w, http.StatusTooManyRequests, response.GeneralError(
					errors.New("rate limit exceeded")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
