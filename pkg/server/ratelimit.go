package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mercator-hq/rampart/pkg/config"
)

// ErrorTypeRateLimit marks a request rejected by the per-caller limiter.
const ErrorTypeRateLimit = "rate_limit_error"

// Idle buckets are swept once the table grows past sweepThreshold.
const (
	sweepThreshold = 4096
	bucketIdleTTL  = 10 * time.Minute
)

// tokenBucket refills at rate tokens per second up to capacity. Tokens are
// fractional so rates below one per second work.
type tokenBucket struct {
	capacity   float64
	tokens     float64
	rate       float64
	lastRefill time.Time
	inFlight   int
}

func newTokenBucket(capacity int64, rate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		rate:       rate,
		lastRefill: now,
	}
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
	b.lastRefill = now
}

// take consumes one token, or reports how long until one is available.
func (b *tokenBucket) take(now time.Time) (bool, time.Duration) {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := (1 - b.tokens) / b.rate
	return false, time.Duration(wait * float64(time.Second))
}

// rateLimiter keeps one bucket per caller.
type rateLimiter struct {
	cfg config.RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg, now: time.Now, buckets: make(map[string]*tokenBucket)}
}

// acquire admits one request for caller. On success the returned release
// must be called when the request finishes.
func (l *rateLimiter) acquire(caller string) (release func(), retryAfter time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, found := l.buckets[caller]
	if !found {
		if len(l.buckets) >= sweepThreshold {
			l.sweepLocked(now)
		}
		b = newTokenBucket(l.cfg.Burst, l.cfg.RequestsPerSecond, now)
		l.buckets[caller] = b
	}

	if l.cfg.MaxConcurrent > 0 && b.inFlight >= l.cfg.MaxConcurrent {
		return nil, time.Second, false
	}
	allowed, wait := b.take(now)
	if !allowed {
		return nil, wait, false
	}

	b.inFlight++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			b.inFlight--
			l.mu.Unlock()
		})
	}, 0, true
}

// sweepLocked drops buckets that have been idle and refilled.
func (l *rateLimiter) sweepLocked(now time.Time) {
	for caller, b := range l.buckets {
		if b.inFlight == 0 && now.Sub(b.lastRefill) > bucketIdleTTL {
			delete(l.buckets, caller)
		}
	}
}

// callerKey identifies the caller by authenticated principal, falling back
// to the client IP.
func callerKey(r *http.Request) string {
	if name, ok := Principal(r.Context()); ok {
		return "key:" + name
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// limit rejects requests over the caller's budget with 429.
func (s *Server) limit(l *rateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerKey(r)
		release, retryAfter, ok := l.acquire(caller)
		if !ok {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			s.logger.WarnContext(r.Context(), "Rate limit exceeded", "caller", caller, "path", r.URL.Path, "retry_after_s", secs)
			s.opts.Metrics.RecordRateLimited(r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, r, http.StatusTooManyRequests, ErrorTypeRateLimit, "rate limit exceeded")
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}
