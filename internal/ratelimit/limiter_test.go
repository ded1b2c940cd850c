package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalfonso89/currency-trends-dashboard/internal/testutils"
)

func TestNewLimiter(t *testing.T) {
	cfg := testutils.MockConfig("")
	logger := testutils.MockLogger()

	limiter := NewLimiter(cfg, logger)
	defer limiter.Stop()

	if limiter == nil {
		t.Fatal("NewLimiter() returned nil")
	}
	if limiter.Configuration != cfg {
		t.Errorf("NewLimiter() configuration = %v, want %v", limiter.Configuration, cfg)
	}
	if limiter.clientBuckets == nil {
		t.Errorf("NewLimiter() clientBuckets is nil")
	}
	if limiter.cleanupTicker == nil {
		t.Errorf("NewLimiter() cleanupTicker is nil")
	}
}

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name             string
		rateLimitEnabled bool
		requests         int
		expected         []bool
	}{
		{
			name:             "rate limiting disabled",
			rateLimitEnabled: false,
			requests:         5,
			expected:         []bool{true, true, true, true, true},
		},
		{
			name:             "rate limiting enabled - within limit",
			rateLimitEnabled: true,
			requests:         3,
			expected:         []bool{true, true, true},
		},
		{
			name:             "rate limiting enabled - exceed limit",
			rateLimitEnabled: true,
			requests:         12, // More than burst limit (10)
			expected:         []bool{true, true, true, true, true, true, true, true, true, true, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutils.MockConfig("")
			cfg.RateLimitEnabled = tt.rateLimitEnabled
			cfg.RateLimitBurst = 10
			cfg.RateLimitRequests = 100
			cfg.RateLimitWindow = 60 * time.Second

			limiter := NewLimiter(cfg, testutils.MockLogger())
			defer limiter.Stop()

			for i := 0; i < tt.requests; i++ {
				if result := limiter.Allow("192.168.1.1"); result != tt.expected[i] {
					t.Errorf("Allow() request %d = %v, want %v", i, result, tt.expected[i])
				}
			}
		})
	}
}

func TestLimiter_Allow_DifferentIPs(t *testing.T) {
	cfg := testutils.MockConfig("")
	cfg.RateLimitEnabled = true
	cfg.RateLimitBurst = 5
	cfg.RateLimitRequests = 100
	cfg.RateLimitWindow = 60 * time.Second

	limiter := NewLimiter(cfg, testutils.MockLogger())
	defer limiter.Stop()

	ip1 := "192.168.1.1"
	ip2 := "192.168.1.2"

	for i := 0; i < 5; i++ {
		if !limiter.Allow(ip1) {
			t.Errorf("Allow() IP1 request %d = false, want true", i)
		}
		if !limiter.Allow(ip2) {
			t.Errorf("Allow() IP2 request %d = false, want true", i)
		}
	}

	if limiter.Allow(ip1) {
		t.Errorf("Allow() IP1 after burst = true, want false")
	}
	if limiter.Allow(ip2) {
		t.Errorf("Allow() IP2 after burst = true, want false")
	}
	if got := limiter.Buckets(); got != 2 {
		t.Errorf("Buckets() = %d, want 2", got)
	}
}

func TestLimiter_Retry(t *testing.T) {
	cfg := testutils.MockConfig("")
	cfg.RateLimitEnabled = true
	cfg.RateLimitBurst = 1
	cfg.RateLimitRequests = 60
	cfg.RateLimitWindow = time.Minute

	limiter := NewLimiter(cfg, testutils.MockLogger())
	defer limiter.Stop()

	if !limiter.Allow("10.0.0.1") {
		t.Fatal("Allow() first request = false, want true")
	}
	wait := time.Until(limiter.Retry("10.0.0.1"))
	if wait <= 0 || wait > 2*time.Second {
		t.Errorf("Retry() wait = %v, want roughly one second", wait)
	}
	// Retry must not consume the token it reports on
	if limiter.Allow("10.0.0.1") {
		t.Errorf("Allow() right after Retry() = true, want false")
	}
}

func TestLimiter_GetClientIP(t *testing.T) {
	limiter := NewLimiter(testutils.MockConfig(""), testutils.MockLogger())
	defer limiter.Stop()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For header",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "X-Forwarded-For chain takes the first hop",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "X-Real-IP header",
			headers:    map[string]string{"X-Real-IP": "203.0.113.195"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "RemoteAddr fallback",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.1:12345",
			expected:   "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For with port",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195:8080"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "Invalid X-Forwarded-For falls back to RemoteAddr",
			headers:    map[string]string{"X-Forwarded-For": "invalid-ip"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			req.RemoteAddr = tt.remoteAddr
			for header, value := range tt.headers {
				req.Header.Set(header, value)
			}

			if result := limiter.GetClientIP(req); result != tt.expected {
				t.Errorf("GetClientIP() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLimiter_Prune(t *testing.T) {
	cfg := testutils.MockConfig("")
	cfg.RateLimitEnabled = true

	limiter := NewLimiter(cfg, testutils.MockLogger())
	defer limiter.Stop()

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.2")

	if removed := limiter.prune(time.Now().Add(-time.Minute)); removed != 0 {
		t.Errorf("prune() of fresh buckets removed %d, want 0", removed)
	}
	if removed := limiter.prune(time.Now().Add(time.Minute)); removed != 2 {
		t.Errorf("prune() of idle buckets removed %d, want 2", removed)
	}
	if got := limiter.Buckets(); got != 0 {
		t.Errorf("Buckets() after prune = %d, want 0", got)
	}
}

func TestLimiter_Stop(t *testing.T) {
	limiter := NewLimiter(testutils.MockConfig(""), testutils.MockLogger())

	// Stop twice should not panic
	limiter.Stop()
	limiter.Stop()
}
