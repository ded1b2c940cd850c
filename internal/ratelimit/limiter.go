package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
)

const (
	cleanupInterval = 5 * time.Minute
	idleBucketTTL   = time.Hour
)

// Limiter keeps a token bucket per client IP for inbound dashboard requests
type Limiter struct {
	Configuration *config.Config
	logger        *logger.Logger

	// Map of IP -> token bucket
	clientBuckets map[string]*clientBucket
	bucketsMutex  sync.Mutex

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a new rate limiter and starts its cleanup goroutine
func NewLimiter(configuration *config.Config, logger *logger.Logger) *Limiter {
	rateLimiter := &Limiter{
		Configuration: configuration,
		logger:        logger,
		clientBuckets: make(map[string]*clientBucket),
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup()

	return rateLimiter
}

// refillRate spreads RateLimitRequests evenly over RateLimitWindow
func (rateLimiter *Limiter) refillRate() rate.Limit {
	window := rateLimiter.Configuration.RateLimitWindow
	if window <= 0 || rateLimiter.Configuration.RateLimitRequests <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(rateLimiter.Configuration.RateLimitRequests) / window.Seconds())
}

// Allow checks if a request from the given IP is allowed
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.Configuration.RateLimitEnabled {
		return true
	}

	rateLimiter.bucketsMutex.Lock()
	bucket, exists := rateLimiter.clientBuckets[clientIP]
	if !exists {
		burst := rateLimiter.Configuration.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		bucket = &clientBucket{limiter: rate.NewLimiter(rateLimiter.refillRate(), burst)}
		rateLimiter.clientBuckets[clientIP] = bucket
	}
	bucket.lastSeen = time.Now()
	rateLimiter.bucketsMutex.Unlock()

	return bucket.limiter.Allow()
}

// Retry returns when the next request from clientIP would be admitted
func (rateLimiter *Limiter) Retry(clientIP string) time.Time {
	rateLimiter.bucketsMutex.Lock()
	bucket, exists := rateLimiter.clientBuckets[clientIP]
	rateLimiter.bucketsMutex.Unlock()

	now := time.Now()
	if !exists {
		return now
	}
	reservation := bucket.limiter.ReserveN(now, 1)
	defer reservation.CancelAt(now)
	return now.Add(reservation.DelayFrom(now))
}

// Buckets returns the number of tracked clients
func (rateLimiter *Limiter) Buckets() int {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()
	return len(rateLimiter.clientBuckets)
}

// GetClientIP extracts the real client IP from the request
func (rateLimiter *Limiter) GetClientIP(request *http.Request) string {
	// X-Forwarded-For may carry a chain; the first hop is the client
	if xForwardedFor := request.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		first := strings.TrimSpace(strings.Split(xForwardedFor, ",")[0])
		if clientIP := net.ParseIP(first); clientIP != nil {
			return clientIP.String()
		}
		if host, _, err := net.SplitHostPort(first); err == nil {
			if clientIP := net.ParseIP(host); clientIP != nil {
				return clientIP.String()
			}
		}
	}

	if xRealIP := request.Header.Get("X-Real-IP"); xRealIP != "" {
		if clientIP := net.ParseIP(strings.TrimSpace(xRealIP)); clientIP != nil {
			return clientIP.String()
		}
	}

	clientIP, _, parseError := net.SplitHostPort(request.RemoteAddr)
	if parseError != nil {
		return request.RemoteAddr
	}
	return clientIP
}

// prune drops buckets idle since before cutoff
func (rateLimiter *Limiter) prune(cutoff time.Time) int {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	removed := 0
	for clientIP, bucket := range rateLimiter.clientBuckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(rateLimiter.clientBuckets, clientIP)
			removed++
		}
	}
	return removed
}

// cleanup removes idle buckets to prevent memory leaks
func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			if removed := rateLimiter.prune(time.Now().Add(-idleBucketTTL)); removed > 0 {
				rateLimiter.logger.WithField("removed", removed).Debug("Pruned idle rate limit buckets")
			}
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() {
		close(rateLimiter.stopCleanup)
	})
}
