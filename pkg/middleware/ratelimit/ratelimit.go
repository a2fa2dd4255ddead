// Package ratelimit throttles requests per client IP with a token bucket.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/therapy_shop/pkg/logging"
)

const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

// PerMinute allows n requests per minute per IP, with bursts of up to n.
func PerMinute(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return New(rate.Every(time.Minute/time.Duration(n)), n)
}

func New(r rate.Limit, burst int) *Limiter {
	return &Limiter{
		rate:     r,
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *Limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > idleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > idleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *Limiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if !l.allow(ip) {
			logging.FromContext(c.Request().Context()).Warn("rate_limited", "status", 429, "remote_ip", ip)
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return next(c)
	}
}
