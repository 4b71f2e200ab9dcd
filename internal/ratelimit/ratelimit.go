// Package ratelimit keeps one token bucket per (endpoint, identifier) pair.
// Buckets refill continuously, so a window's budget frees up gradually
// rather than all at once.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"golang.org/x/time/rate"
)

var ErrUnknownEndpoint = errors.New("no rate limit configured for endpoint")

const pruneEvery = 1024

// Result is the outcome of one CheckAndConsume call
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
	// RetryAfter is set when the request was refused
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter applies the per-endpoint budgets of the catalog
type Limiter struct {
	limits map[string]catalog.RateLimit

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
	now     func() time.Time
}

// New creates a limiter for the given endpoint budgets
func New(limits map[string]catalog.RateLimit) *Limiter {
	return &Limiter{
		limits:  limits,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Limit returns the budget of an endpoint
func (l *Limiter) Limit(endpoint string) (catalog.RateLimit, bool) {
	cfg, ok := l.limits[endpoint]
	return cfg, ok
}

// CheckAndConsume takes one request from the bucket of (endpoint, identifier).
// It fails open: an endpoint without a budget is allowed and logged.
func (l *Limiter) CheckAndConsume(endpoint, identifier string) Result {
	cfg, ok := l.limits[endpoint]
	if !ok {
		logger.WithFields(map[string]interface{}{
			"endpoint": endpoint,
			"error":    ErrUnknownEndpoint.Error(),
		}).Warn("Rate limiter failing open")
		return Result{Allowed: true, ResetTime: l.now().Add(time.Hour)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	interval := cfg.Window / time.Duration(cfg.Requests)
	b := l.bucketFor(endpoint, identifier, cfg, interval, now)

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	res := Result{
		Allowed:   allowed,
		Limit:     cfg.Requests,
		Remaining: remaining,
		ResetTime: now.Add(time.Duration((float64(cfg.Requests) - tokens) * float64(interval))),
	}
	if !allowed {
		res.RetryAfter = time.Duration((1 - tokens) * float64(interval))
		res.ResetTime = now.Add(res.RetryAfter)
		logger.WithFields(map[string]interface{}{
			"endpoint":   endpoint,
			"identifier": identifier,
		}).Info("Rate limit exceeded")
	}
	return res
}

func (l *Limiter) bucketFor(endpoint, identifier string, cfg catalog.RateLimit, interval time.Duration, now time.Time) *bucket {
	l.calls++
	if l.calls%pruneEvery == 0 {
		l.prune(now)
	}

	key := fmt.Sprintf("%s:%s", endpoint, identifier)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(interval), cfg.Requests)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// prune drops buckets idle for longer than the longest window; they would be full again anyway
func (l *Limiter) prune(now time.Time) {
	var longest time.Duration
	for _, cfg := range l.limits {
		if cfg.Window > longest {
			longest = cfg.Window
		}
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > longest {
			delete(l.buckets, key)
		}
	}
}

// Identifier builds the bucket identifier of a caller: user:<id> when
// authenticated, otherwise ip:<address>
func Identifier(userID, forwardedFor, realIP, remoteIP string) string {
	if userID != "" {
		return "user:" + userID
	}
	if forwardedFor != "" {
		for i := 0; i < len(forwardedFor); i++ {
			if forwardedFor[i] == ',' {
				forwardedFor = forwardedFor[:i]
				break
			}
		}
		return "ip:" + forwardedFor
	}
	if realIP != "" {
		return "ip:" + realIP
	}
	if remoteIP != "" {
		return "ip:" + remoteIP
	}
	return "ip:unknown"
}
