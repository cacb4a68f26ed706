package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// MaxKeys bounds how many client buckets are tracked; the least
	// recently seen client is forgotten first.
	MaxKeys int
}

// LoginRateLimitConfig allows a short burst of password attempts per client
// and then one attempt every twelve seconds.
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 1.0 / 12,
		BurstSize:         5,
		MaxKeys:           1024,
	}
}

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: now,
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

type rateLimiterStore struct {
	buckets *lru.Cache[string, *tokenBucket]
	mu      sync.Mutex
	config  RateLimitConfig
	now     func() time.Time
}

func newRateLimiterStore(cfg RateLimitConfig) *rateLimiterStore {
	size := cfg.MaxKeys
	if size <= 0 {
		size = 1024
	}
	buckets, _ := lru.New[string, *tokenBucket](size)
	return &rateLimiterStore{buckets: buckets, config: cfg, now: time.Now}
}

func (s *rateLimiterStore) getBucket(key string) *tokenBucket {
	if bucket, ok := s.buckets.Get(key); ok {
		return bucket
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.buckets.Get(key); ok {
		return bucket
	}
	bucket := newTokenBucket(s.config.RequestsPerSecond, s.config.BurstSize, s.now())
	s.buckets.Add(key, bucket)
	return bucket
}

// RateLimit returns a per-client rate limiting middleware keyed by the
// client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return newRateLimiterStore(cfg).middleware()
}

func (s *rateLimiterStore) middleware() echo.MiddlewareFunc {
	limit := strconv.Itoa(s.config.BurstSize)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			bucket := s.getBucket(c.RealIP())
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !bucket.allow(s.now()) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(bucket.retryAfter()))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many attempts, try again later")
			}
			return next(c)
		}
	}
}
