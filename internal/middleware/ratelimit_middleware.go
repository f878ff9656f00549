package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"traffic-light/internal/transport/httpdto"
	"traffic-light/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	rate     rate.Limit
	burst    int
	ttl      time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter allows perSecond requests per IP with the given burst.
// A burst below 1 is raised to 1.
func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*visitor),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		ttl:      3 * time.Minute,
	}
}

// Allow consumes one token for ip.
func (l *IPRateLimiter) Allow(_ context.Context, ip string) (bool, time.Duration, error) {
	if l.get(ip).Allow() {
		return true, 0, nil
	}
	return false, retryAfter(l.rate), nil
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = v
	}
	v.lastSeen = now

	// sweep idle visitors while we hold the lock
	if len(l.limiters) > 1024 {
		for k, other := range l.limiters {
			if now.Sub(other.lastSeen) > l.ttl {
				delete(l.limiters, k)
			}
		}
	}
	return v.limiter
}

// Limiter decides whether key may perform one more action. retryAfter is a
// hint for rejected calls.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// RateLimitMiddleware rejects requests over the per-IP limit with 429. If
// the limiter itself fails the request is let through.
func RateLimitMiddleware(limiter Limiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ok, wait, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if l != nil {
				l.WithContext(c.Request.Context()).Sugar().Warnf("rate limit check failed: %v", err)
			}
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(seconds(wait)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpdto.NewStatusError("rate limit exceeded"))
			return
		}
		c.Next()
	}
}

func retryAfter(r rate.Limit) time.Duration {
	if r <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / float64(r))
}

func seconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
