package extraction

import (
	"sync"
	"time"
)

const triggerCooldown = 5 * time.Second

// triggerLimiter enforces the per-user cooldown on manual extraction
// triggers.
type triggerLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newTriggerLimiter(window time.Duration, now func() time.Time) *triggerLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = triggerCooldown
	}
	return &triggerLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *triggerLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[userID]; ok {
		if now.Sub(last) < l.window {
			return false
		}
	}
	l.lastHit[userID] = now
	return true
}

func (l *triggerLimiter) RetryAfterSeconds() int {
	if l == nil {
		return int(triggerCooldown.Seconds())
	}
	return int(l.window.Seconds())
}
