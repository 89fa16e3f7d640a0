package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// pruneThreshold caps how many keys accumulate before expired buckets are
// swept on the next request. Keys rotate hourly, so the map self-empties.
const pruneThreshold = 100000

// RateLimit admits at most limit requests per window for each key produced by
// keyFn, rejecting the excess with 429 before any parsing cost is paid. The
// bucket check-and-increment happens under one lock so two concurrent
// requests cannot both observe "under quota".
func RateLimit(limit int, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	var mu sync.Mutex
	buckets := make(map[string]*bucket)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			now := time.Now()

			mu.Lock()
			if len(buckets) > pruneThreshold {
				for k, b := range buckets {
					if now.After(b.until) {
						delete(buckets, k)
					}
				}
			}
			b, ok := buckets[key]
			if !ok || now.After(b.until) {
				b = &bucket{count: 0, until: now.Add(window)}
				buckets[key] = b
			}
			if b.count >= limit {
				retryAfter := int(b.until.Sub(now).Seconds()) + 1
				mu.Unlock()
				writeRateLimited(w, retryAfter)
				return
			}
			b.count++
			mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    false,
		"error":      "rate_limited",
		"message":    "batch submission quota exceeded for this window",
		"retryAfter": retryAfter,
	})
}
