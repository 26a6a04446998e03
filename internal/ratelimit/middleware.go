package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// DefaultRetryAfterSeconds is the Retry-After value sent with 429 responses.
const DefaultRetryAfterSeconds = 1

// RejectFunc writes the response for a request over its limit. Retry-After
// and X-RateLimit-Remaining are already set when it runs.
type RejectFunc func(w http.ResponseWriter, r *http.Request)

// Middleware enforces limits keyed by keyFunc. An empty key skips limiting.
// A nil reject writes a plain 429 JSON body.
func Middleware(limiter *RateLimiter, keyFunc func(r *http.Request) string, reject RejectFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = writeTooManyRequests
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			rateLimiter := limiter.GetLimiter(key)
			if !rateLimiter.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				reject(w, r)
				return
			}

			remaining := int(rateLimiter.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
}
