package middleware

import (
	"net/http"
	"sync"
	"time"

	apperrors "callpilot/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long a client's limiter is kept without traffic.
const idleLimiterTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client IP.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newLimiterStore(limit rate.Limit, burst int) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	s.evictLocked(now)
	return entry.limiter
}

func (s *limiterStore) evictLocked(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > idleLimiterTTL {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit applies per-IP token buckets to the control API. A
// non-positive rate disables it.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if burst <= 0 {
		burst = 1
	}
	store := newLimiterStore(rate.Limit(perSecond), burst)

	return func(c *gin.Context) {
		if !store.get(c.ClientIP()).Allow() {
			appErr := apperrors.NewRateLimitError()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}
		c.Next()
	}
}
