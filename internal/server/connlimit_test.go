package server

import (
	"net/http"
	"testing"

	"github.com/lawnchairsociety/tilecollapse/internal/config"
)

func TestConnLimiter_PerIPLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 2, MaxTotal: 100})

	release, ok := limiter.Acquire("192.168.1.1")
	if !ok {
		t.Fatal("first connection should be allowed")
	}
	if _, ok := limiter.Acquire("192.168.1.1"); !ok {
		t.Error("second connection should be allowed")
	}
	if _, ok := limiter.Acquire("192.168.1.1"); ok {
		t.Error("third connection from same IP should be rejected")
	}
	if _, ok := limiter.Acquire("192.168.1.2"); !ok {
		t.Error("connection from different IP should be allowed")
	}

	release()
	if _, ok := limiter.Acquire("192.168.1.1"); !ok {
		t.Error("connection should be allowed after release")
	}
}

func TestConnLimiter_TotalLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 10, MaxTotal: 3})

	release, _ := limiter.Acquire("192.168.1.1")
	limiter.Acquire("192.168.1.2")
	limiter.Acquire("192.168.1.3")

	if _, ok := limiter.Acquire("192.168.1.4"); ok {
		t.Error("fourth connection should be rejected due to total limit")
	}

	release()
	if _, ok := limiter.Acquire("192.168.1.4"); !ok {
		t.Error("connection should be allowed after release")
	}
}

func TestConnLimiter_ReleaseIsIdempotent(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 5, MaxTotal: 5})

	release, _ := limiter.Acquire("10.0.0.1")
	limiter.Acquire("10.0.0.1")
	release()
	release()

	if got := limiter.IPCount("10.0.0.1"); got != 1 {
		t.Errorf("IPCount = %d after double release, want 1", got)
	}
}

func TestConnLimiter_Unlimited(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{})

	for i := 0; i < 100; i++ {
		if _, ok := limiter.Acquire("192.168.1.1"); !ok {
			t.Errorf("connection %d should be allowed when unlimited", i)
		}
	}
}

func TestConnLimiter_Stats(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 10, MaxTotal: 100})

	limiter.Acquire("192.168.1.1")
	limiter.Acquire("192.168.1.1")
	release, _ := limiter.Acquire("192.168.1.2")

	total, ips := limiter.Stats()
	if total != 3 || ips != 2 {
		t.Errorf("Stats() = (%d, %d), want (3, 2)", total, ips)
	}

	release()
	total, ips = limiter.Stats()
	if total != 2 || ips != 1 {
		t.Errorf("Stats() after release = (%d, %d), want (2, 1)", total, ips)
	}
	if count := limiter.IPCount("192.168.1.2"); count != 0 {
		t.Errorf("expected released IP to drop out, got %d", count)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"192.168.1.1:12345", "192.168.1.1"},
		{"[::1]:12345", "::1"},
		{"localhost:4480", "localhost"},
		{"192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		if result := extractIP(tt.input); result != tt.expected {
			t.Errorf("extractIP(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		xff        string
		xri        string
		remoteAddr string
		expected   string
	}{
		{"X-Forwarded-For single IP", true, "203.0.113.50", "", "10.0.0.1:12345", "203.0.113.50"},
		{"X-Forwarded-For multiple IPs", true, "203.0.113.50, 70.41.3.18", "", "10.0.0.1:12345", "203.0.113.50"},
		{"X-Real-IP", true, "", "203.0.113.50", "10.0.0.1:12345", "203.0.113.50"},
		{"X-Forwarded-For takes precedence", true, "203.0.113.50", "198.51.100.25", "10.0.0.1:12345", "203.0.113.50"},
		{"blank X-Forwarded-For entry", true, " , 70.41.3.18", "198.51.100.25", "10.0.0.1:12345", "198.51.100.25"},
		{"No headers", true, "", "", "192.168.1.100:54321", "192.168.1.100"},
		{"untrusted X-Forwarded-For ignored", false, "203.0.113.50", "", "10.0.0.1:12345", "10.0.0.1"},
		{"untrusted X-Real-IP ignored", false, "", "203.0.113.50", "10.0.0.1:12345", "10.0.0.1"},
		{"untrusted no headers", false, "", "", "192.168.1.100:54321", "192.168.1.100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if result := getRealIP(req, tt.trust); result != tt.expected {
				t.Errorf("getRealIP() = %q, want %q", result, tt.expected)
			}
		})
	}
}
