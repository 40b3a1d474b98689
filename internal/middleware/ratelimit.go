// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/templates/users-service/internal/core"
)

// LimitedFunc replaces the default 429 response. scope is the limiter's
// RateLimitConfig.Scope.
type LimitedFunc func(w http.ResponseWriter, r *http.Request, scope string, res *redis_rate.Result)

type RateLimitConfig struct {
	// Scope namespaces bucket keys so limiters sharing a Redis never
	// collide. Defaults to "global".
	Scope      string
	Limit      redis_rate.Limit
	KeyFunc    func(*http.Request) string
	FailOpen   bool
	BypassFunc func(*http.Request) bool
	OnLimited  LimitedFunc
	Now        func() time.Time
}

// RateLimiter enforces a limit through Redis when a client is configured
// and through an in-process token bucket otherwise, or when Redis errors.
type RateLimiter struct {
	redis  *redis_rate.Limiter
	local  *bucketStore
	config RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.Scope == "" {
		cfg.Scope = "global"
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rl := &RateLimiter{
		local:  newBucketStore(cfg.Now),
		config: cfg,
	}
	if rdb != nil {
		rl.redis = redis_rate.NewLimiter(rdb)
	}

	return rl
}

// Close stops the in-process bucket janitor.
func (rl *RateLimiter) Close() {
	rl.local.stop()
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := "ratelimit:" + rl.config.Scope + ":" + rl.config.KeyFunc(r)
		res, err := rl.allow(r.Context(), key)
		if err != nil {
			if rl.config.FailOpen {
				slog.WarnContext(r.Context(), "rate limiter error, failing open",
					"scope", rl.config.Scope,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			core.JSONError(w, fmt.Errorf("rate limiter: %w", err))
			return
		}

		setRateLimitHeaders(w, res, rl.config.Limit, rl.config.Now())

		if res.Allowed == 0 {
			if rl.config.OnLimited != nil {
				rl.config.OnLimited(w, r, rl.config.Scope, res)
				return
			}
			WriteRateLimitExceeded(w, res)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(
	ctx context.Context,
	key string,
) (*redis_rate.Result, error) {
	if rl.redis == nil {
		return rl.local.allow(key, rl.config.Limit)
	}

	res, err := rl.redis.Allow(ctx, key, rl.config.Limit)
	if err != nil {
		slog.DebugContext(ctx, "redis rate limit unavailable, using local bucket", "error", err)
		return rl.local.allow(key, rl.config.Limit)
	}
	return res, nil
}

// IPKeys derives rate limit keys from the caller's address. Forwarding
// headers are client controlled, so they are read only when TrustProxy is
// set and the service sits behind a proxy that overwrites them.
type IPKeys struct {
	TrustProxy bool
}

// ClientIP resolves the caller's address. Behind a trusted proxy the last
// X-Forwarded-For hop is the one that proxy appended.
func (k IPKeys) ClientIP(r *http.Request) string {
	if k.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			if hop := strings.TrimSpace(hops[len(hops)-1]); hop != "" {
				return hop
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (k IPKeys) ByIP(r *http.Request) string {
	return "ip:" + k.ClientIP(r)
}

// ByIPAndEndpoint gives every credential endpoint its own budget, so login
// attempts do not eat into the refresh budget.
func (k IPKeys) ByIPAndEndpoint(r *http.Request) string {
	return k.ByIP(r) + ":" + path.Clean("/"+strings.Trim(r.URL.Path, "/"))
}

// ClientIP resolves the caller from the connection alone.
func ClientIP(r *http.Request) string {
	return IPKeys{}.ClientIP(r)
}

func KeyByIP(r *http.Request) string {
	return IPKeys{}.ByIP(r)
}

func KeyByIPAndEndpoint(r *http.Request) string {
	return IPKeys{}.ByIPAndEndpoint(r)
}

func setRateLimitHeaders(
	w http.ResponseWriter,
	res *redis_rate.Result,
	limit redis_rate.Limit,
	now time.Time,
) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(res.ResetAfter).Unix(), 10))
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d", res.Remaining, int(res.ResetAfter.Seconds())))
}

func WriteRateLimitExceeded(w http.ResponseWriter, res *redis_rate.Result) {
	retryAfter := max(int(res.RetryAfter.Seconds()), 1)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	core.JSON(w, http.StatusTooManyRequests, core.Response{
		Success: false,
		Error: &core.ErrorBody{
			Code:    "RATE_LIMITED",
			Message: fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retryAfter),
		},
	})
}

const (
	janitorInterval = 5 * time.Minute
	bucketIdleTTL   = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketStore holds per-key token buckets for when Redis is absent.
// Idle buckets are evicted by a janitor goroutine.
type bucketStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

func newBucketStore(now func() time.Time) *bucketStore {
	s := &bucketStore{
		buckets: make(map[string]*bucket),
		now:     now,
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *bucketStore) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *bucketStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *bucketStore) evictIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-bucketIdleTTL)
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}

func (s *bucketStore) allow(key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, fmt.Errorf("invalid limit %d per %s", limit.Rate, limit.Period)
	}

	perToken := limit.Period / time.Duration(limit.Rate)
	now := s.now()

	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(perToken), max(limit.Burst, 1))}
		s.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	s.mu.Unlock()

	res := &redis_rate.Result{
		Limit:      limit,
		Remaining:  max(int(tokens), 0),
		RetryAfter: -1,
		ResetAfter: perToken,
	}
	if allowed {
		res.Allowed = 1
	} else {
		deficit := 1 - tokens
		res.RetryAfter = time.Duration(deficit * float64(perToken))
	}

	return res, nil
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return PerWindow(rate, burst, time.Minute)
}

// PerWindow builds a limit over an arbitrary window.
func PerWindow(rate, burst int, window time.Duration) redis_rate.Limit {
	if window <= 0 {
		window = time.Minute
	}
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: window,
	}
}
