package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client IP. Idle buckets expire
// from the cache.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
	logger   *slog.Logger

	// trusted proxies may set X-Forwarded-For.
	trusted []*net.IPNet
	// limited selects the paths that are rate limited; nil means all.
	limited func(path string) bool
}

// NewRateLimiter allows rps requests per second per client with the given
// burst. Buckets idle for ttl are dropped.
func NewRateLimiter(rps float64, burst int, ttl time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: cache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// WithTrustedProxies makes the limiter honour X-Forwarded-For on requests
// arriving from one of nets.
func (rl *RateLimiter) WithTrustedProxies(nets []*net.IPNet) *RateLimiter {
	rl.trusted = nets
	return rl
}

// WithPathFilter limits only requests whose path matches.
func (rl *RateLimiter) WithPathFilter(match func(path string) bool) *RateLimiter {
	rl.limited = match
	return rl
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		// Touch so active clients keep their bucket.
		rl.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}

	l := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// Lost the race; use the bucket that won.
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limited != nil && !rl.limited(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r, rl.trusted)
		if !rl.Allow(ip) {
			rl.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ParseTrustedProxies parses IP addresses and CIDR ranges.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func isTrusted(ip net.IP, trusted []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the address a request came from. X-Forwarded-For is only
// read when the direct peer is a trusted proxy; then the rightmost hop that
// is not itself trusted is the client.
func ClientIP(r *http.Request, trusted []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrusted(net.ParseIP(host), trusted) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil {
			break
		}
		if !isTrusted(ip, trusted) {
			return ip.String()
		}
	}
	return host
}
