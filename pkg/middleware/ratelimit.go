package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/storefront/pkg/httputil"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP. Entries idle for longer
// than ttl are evicted by Run.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	proxies  TrustedProxies
	now      func() time.Time
	logger   *slog.Logger
}

// NewRateLimiter creates a per-IP limiter allowing rps requests per second
// with the given burst.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      3 * time.Minute,
		now:      time.Now,
		logger:   logger,
	}
}

// WithTrustedProxies makes the limiter key requests arriving through one of
// proxies on the client address they forward.
func (l *RateLimiter) WithTrustedProxies(proxies TrustedProxies) *RateLimiter {
	l.proxies = proxies
	return l
}

// Run evicts idle visitors until ctx is cancelled.
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *RateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

func (l *RateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
		}
	}
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := l.proxies.ClientIP(r)
		lim := l.get(ip)

		res := lim.ReserveN(l.now(), 1)
		if !res.OK() {
			l.reject(w, r, ip, time.Second)
			return
		}
		if delay := res.DelayFrom(l.now()); delay > 0 {
			res.CancelAt(l.now())
			l.reject(w, r, ip, delay)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) reject(w http.ResponseWriter, r *http.Request, ip string, retryAfter time.Duration) {
	l.logger.WarnContext(r.Context(), "rate limit exceeded",
		slog.String("ip", ip),
		slog.String("path", r.URL.Path),
	)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
		Error: "too many requests",
		Code:  "RATE_LIMITED",
	})
}

// TrustedProxies are the networks of the load balancers in front of the
// service. Only they may name the client in a forwarded header.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses a list of CIDRs.
func ParseTrustedProxies(cidrs []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy %q: %w", cidr, err)
		}
		proxies = append(proxies, ipNet)
	}
	return proxies, nil
}

func (p TrustedProxies) trusts(ip net.IP) bool {
	for _, n := range p {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address of r. X-Forwarded-For is walked from
// the right past trusted hops, and only when the peer itself is trusted.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	ip := net.ParseIP(peer)
	if ip == nil || !p.trusts(ip) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := net.ParseIP(strings.TrimSpace(hops[i]))
			if hop == nil {
				break
			}
			if !p.trusts(hop) {
				return hop.String()
			}
		}
	}
	if xri := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); xri != nil {
		return xri.String()
	}
	return peer
}

// ClientIP returns the host of r.RemoteAddr. Forwarded headers are
// client-controlled and ignored here.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
