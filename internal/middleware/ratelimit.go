package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRateLimitKeyPrefix namespaces the counters of the API
const DefaultRateLimitKeyPrefix = "omega:ratelimit"

// fixedWindow increments the counter and starts its window on the first hit.
// Returns {count, remaining window in ms}.
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RateLimiter counts requests per client IP in Redis. Each bucket has its
// own counters, so a client exhausting one bucket keeps the others.
type RateLimiter struct {
	client  *redis.Client
	prefix  string
	logger  *zap.Logger
	trusted []netip.Prefix
}

// NewRateLimiter creates a limiter whose keys live under prefix
func NewRateLimiter(client *redis.Client, prefix string, logger *zap.Logger) *RateLimiter {
	if prefix == "" {
		prefix = DefaultRateLimitKeyPrefix
	}
	return &RateLimiter{client: client, prefix: prefix, logger: logger}
}

// TrustProxies makes the limiter read X-Forwarded-For on requests arriving
// from one of prefixes. Any other peer is counted by its own address.
func (l *RateLimiter) TrustProxies(prefixes []netip.Prefix) *RateLimiter {
	l.trusted = prefixes
	return l
}

// Limit returns a middleware allowing requests per window for each client in
// bucket. When Redis is unreachable requests are let through.
func (l *RateLimiter) Limit(bucket string, requests int, window time.Duration) func(http.Handler) http.Handler {
	limit := strconv.Itoa(requests)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := l.clientIP(r)
			key := fmt.Sprintf("%s:%s:%s", l.prefix, bucket, client)

			res, err := fixedWindow.Run(r.Context(), l.client, []string{key}, window.Milliseconds()).Int64Slice()
			if err != nil || len(res) != 2 {
				l.logger.Warn("Rate limit check skipped", zap.String("bucket", bucket), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			count, ttl := res[0], time.Duration(res[1])*time.Millisecond
			if ttl < 0 {
				ttl = window
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			if count > int64(requests) {
				l.logger.Warn("Rate limit exceeded",
					zap.String("bucket", bucket),
					zap.String("client", client),
					zap.Int64("count", count),
				)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int((ttl+time.Second-1)/time.Second)))
				RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(requests)-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the peer address without its port, so every connection of a
// client shares one counter. Behind trusted proxies it is the right-most
// X-Forwarded-For hop that is not a proxy itself; hops further left are
// client supplied.
func (l *RateLimiter) clientIP(r *http.Request) string {
	client := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		client = host
	}
	if !l.isTrusted(client) {
		return client
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		client = hop
		if !l.isTrusted(hop) {
			break
		}
	}
	return client
}

func (l *RateLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
