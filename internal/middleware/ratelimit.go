package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smallbiznis/integration-hub/internal/config"
)

// visitorIdleWindow is how long a client may stay silent before its bucket is
// dropped on the next sweep.
const visitorIdleWindow = 5 * time.Minute

// RateLimiter throttles per client IP. OAuth flows are user driven, so the
// budget mostly guards against misbehaving frontends looping on /load.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	logger *zap.Logger

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter from the configured requests-per-minute
// budget. A non-positive budget disables throttling entirely.
func NewRateLimiter(cfg config.Config, logger *zap.Logger) *RateLimiter {
	if cfg.RateLimitRPM <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.L()
	}
	burst := cfg.RateLimitRPM / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:     rate.Limit(float64(cfg.RateLimitRPM) / 60.0),
		burst:     burst,
		logger:    logger,
		visitors:  make(map[string]*visitor),
		lastSweep: time.Now(),
	}
}

// Handler returns the gin middleware enforcing the budget. A nil receiver is
// a passthrough so callers need not special-case a disabled limiter.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !r.allow(clientIP) {
			r.logger.Warn("request throttled",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path),
			)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > visitorIdleWindow {
		r.sweepLocked(now)
		r.lastSweep = now
	}

	entry, ok := r.visitors[key]
	if !ok {
		entry = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > visitorIdleWindow {
			delete(r.visitors, key)
		}
	}
}
