package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/racefetch/config"
	"github.com/use-agent/racefetch/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = time.Hour
	limiterSweepRate = 5 * time.Minute
)

// limiterSet holds one token bucket per caller identity.
type limiterSet struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	seen     map[string]time.Time
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	return &limiterSet{
		limit:    rate.Limit(rps),
		burst:    max(burst, 1),
		limiters: make(map[string]*rate.Limiter),
		seen:     make(map[string]time.Time),
	}
}

func (s *limiterSet) allow(identity string, now time.Time) bool {
	s.mu.Lock()
	l, ok := s.limiters[identity]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[identity] = l
	}
	s.seen[identity] = now
	s.mu.Unlock()
	return l.AllowN(now, 1)
}

// sweep forgets identities idle since before cutoff.
func (s *limiterSet) sweep(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, last := range s.seen {
		if last.Before(cutoff) {
			delete(s.seen, id)
			delete(s.limiters, id)
		}
	}
}

// RateLimit limits requests per caller with golang.org/x/time/rate. The
// caller is the API key set by Auth, or the client IP without one. A
// non-positive rate disables limiting.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	set := newLimiterSet(cfg.RequestsPerSecond, cfg.Burst)

	go func() {
		ticker := time.NewTicker(limiterSweepRate)
		defer ticker.Stop()
		for now := range ticker.C {
			set.sweep(now.Add(-limiterIdleTTL))
		}
	}()

	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RequestsPerSecond)))

	return func(c *gin.Context) {
		identity := c.GetString("api_key")
		if identity == "" {
			identity = c.ClientIP()
		}
		if set.allow(identity, time.Now()) {
			c.Next()
			return
		}
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeRateLimited,
				Message: "rate limit exceeded, retry later",
			},
		})
	}
}
