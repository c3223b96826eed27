package signal

import (
	"sync"
	"time"
)

// AuthRateLimiter caps join attempts per client token with a sliding window,
// so a wrong password can be retried but not hammered.
type AuthRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewAuthRateLimiter(limit int, interval time.Duration) *AuthRateLimiter {
	return &AuthRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *AuthRateLimiter) Allow(sid string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[sid] = fresh
	return true
}

// Reset clears the attempt history after a successful join.
func (rl *AuthRateLimiter) Reset(sid string) {
	rl.mu.Lock()
	delete(rl.history, sid)
	rl.mu.Unlock()
}
