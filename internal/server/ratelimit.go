package server

import (
	"sync"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/config"
)

// ControlLimiter throttles control requests per IP. An IP that exceeds
// maxRequests inside one window is locked out, and each repeat lockout
// doubles up to maxLockout.
type ControlLimiter struct {
	mu              sync.Mutex
	clients         map[string]*requestWindow
	maxRequests     int
	window          time.Duration
	lockout         time.Duration
	maxLockout      time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

type requestWindow struct {
	start        time.Time
	count        int
	lockedUntil  time.Time
	lockoutCount int
}

// NewControlLimiter creates a limiter from config. MaxRequests of 0 allows
// every request.
func NewControlLimiter(cfg config.RateLimitConfig) *ControlLimiter {
	rl := &ControlLimiter{
		clients:         make(map[string]*requestWindow),
		maxRequests:     cfg.MaxRequests,
		window:          time.Duration(cfg.WindowSeconds) * time.Second,
		lockout:         time.Duration(cfg.LockoutSeconds) * time.Second,
		maxLockout:      time.Duration(cfg.MaxLockoutSeconds) * time.Second,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	if rl.window <= 0 {
		rl.window = 10 * time.Second
	}
	if rl.lockout <= 0 {
		rl.lockout = 30 * time.Second
	}
	if rl.maxLockout < rl.lockout {
		rl.maxLockout = rl.lockout
	}

	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *ControlLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// Allow records a request from ip. When the request is refused it also
// returns how long the caller should wait.
func (rl *ControlLimiter) Allow(ip string) (bool, time.Duration) {
	if rl.maxRequests <= 0 {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[ip]
	if !ok {
		w = &requestWindow{start: now}
		rl.clients[ip] = w
	}

	if now.Before(w.lockedUntil) {
		return false, w.lockedUntil.Sub(now)
	}
	if now.Sub(w.start) >= rl.window {
		w.start = now
		w.count = 0
	}

	w.count++
	if w.count <= rl.maxRequests {
		return true, 0
	}

	w.lockoutCount++
	d := rl.lockout
	for i := 1; i < w.lockoutCount; i++ {
		if d >= rl.maxLockout/2 {
			d = rl.maxLockout
			break
		}
		d *= 2
	}
	if d > rl.maxLockout {
		d = rl.maxLockout
	}
	w.lockedUntil = now.Add(d)
	w.count = 0
	return false, d
}

// IsLocked reports whether ip is locked out, and for how much longer.
func (rl *ControlLimiter) IsLocked(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients[ip]
	if !ok {
		return false, 0
	}
	if now := rl.now(); now.Before(w.lockedUntil) {
		return true, w.lockedUntil.Sub(now)
	}
	return false, 0
}

func (rl *ControlLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops IPs whose window and lockout have both lapsed.
func (rl *ControlLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, w := range rl.clients {
		if now.After(w.lockedUntil) && now.Sub(w.start) >= rl.window {
			delete(rl.clients, ip)
		}
	}
}
