package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/medchat-go/internal/logging"
)

// Per-IP token bucket defaults for the question and admin endpoints. A burst
// of 20 lets a chat UI send a few quick follow-ups without a 429.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// limiterIdleTTL is how long a client's bucket is kept without traffic.
const limiterIdleTTL = 5 * time.Minute

// ipLimiter is one client's bucket and when it was last used.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket limit. Idle buckets are
// evicted every minute to bound memory.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
	// rejected counts 429 responses. Nil disables the metric.
	rejected prometheus.Counter
	log      *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its eviction goroutine,
// which exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, rejected prometheus.Counter, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		rejected: rejected,
		log:      log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// getLimiter returns the bucket for ip, creating it on first use.
func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// evict drops buckets idle for longer than limiterIdleTTL as of now.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-limiterIdleTTL)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// size reports how many client buckets are tracked.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// middleware rejects requests over the limit with 429 and a Retry-After
// header giving the seconds until the client's next token.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if wait, ok := rl.admit(ip); !ok {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
				slog.Duration("retry_after", wait),
			)
			if rl.rejected != nil {
				rl.rejected.Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// admit takes a token for ip when one is available now. Otherwise nothing is
// consumed and the wait until the next token is returned.
func (rl *rateLimiter) admit(ip string) (time.Duration, bool) {
	res := rl.getLimiter(ip).Reserve()
	if !res.OK() {
		return time.Second, false
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return d, false
	}
	return 0, true
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is not
// trusted; put the server behind a proxy that rewrites RemoteAddr instead.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
