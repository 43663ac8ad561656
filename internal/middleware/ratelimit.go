package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGeneralRPM = 100
	defaultAuthRPM    = 10
	limiterIdleTTL    = 10 * time.Minute
	sweepThreshold    = 1000
)

type bucket uint8

const (
	bucketGeneral bucket = iota
	bucketCredential
)

type limiterKey struct {
	ip     string
	bucket bucket
}

type trackedLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware throttles per client IP. Routes that take a password
// draw from a separate, smaller budget.
type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int

	mu       sync.Mutex
	limiters map[limiterKey]*trackedLimiter
}

func NewRateLimitMiddleware(generalRPM int, authRPM int) *RateLimitMiddleware {
	if generalRPM <= 0 {
		generalRPM = defaultGeneralRPM
	}
	if authRPM <= 0 {
		authRPM = defaultAuthRPM
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		limiters:   map[limiterKey]*trackedLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		key := limiterKey{ip: ClientIP(r), bucket: bucketGeneral}
		if isCredentialPath(r.URL.Path) {
			key.bucket = bucketCredential
		}

		if wait, ok := m.take(key, time.Now()); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take consumes one token, or reports how long until one is available.
func (m *RateLimitMiddleware) take(key limiterKey, now time.Time) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, ok := m.limiters[key]
	if !ok {
		if len(m.limiters) >= sweepThreshold {
			m.sweepLocked(now)
		}
		rpm := m.generalRPM
		if key.bucket == bucketCredential {
			rpm = m.authRPM
		}
		limiter = &trackedLimiter{Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)}
		m.limiters[key] = limiter
	}
	limiter.lastSeen = now

	if limiter.AllowN(now, 1) {
		return 0, true
	}

	reservation := limiter.ReserveN(now, 1)
	wait := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return wait, false
}

func (m *RateLimitMiddleware) sweepLocked(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for key, limiter := range m.limiters {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.limiters, key)
		}
	}
}

// isCredentialPath reports routes that accept passwords and so get the tighter bucket.
func isCredentialPath(path string) bool {
	switch strings.TrimSuffix(strings.ToLower(path), "/") {
	case "/login", "/register", "/change-password":
		return true
	default:
		return false
	}
}
