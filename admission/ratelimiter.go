package admission

import (
	"fmt"
	"sync"
	"time"

	"voicehub/domain"
)

// Quota is the (cap, window) pair enforced for one priority class.
type Quota struct {
	Cap    int
	Window time.Duration
}

// DefaultQuotas mirrors the per-priority admission budget: cheaper lanes
// get tighter caps so urgent control traffic is never starved by chat.
func DefaultQuotas() map[domain.Priority]Quota {
	return map[domain.Priority]Quota{
		domain.PriorityLow:    {Cap: 10, Window: time.Minute},
		domain.PriorityNormal: {Cap: 30, Window: time.Minute},
		domain.PriorityHigh:   {Cap: 60, Window: time.Minute},
		domain.PriorityUrgent: {Cap: 100, Window: time.Minute},
	}
}

// RateLimiter enforces a sliding-window cap per (user, priority).
// Timestamps older than the window are pruned lazily on each check.
// Ephemeral, process-lifetime only.
type RateLimiter struct {
	mu      sync.Mutex
	quotas  map[domain.Priority]Quota
	now     func() time.Time
	windows map[string][]time.Time
}

// NewRateLimiter constructs a limiter; timeSource is injectable for tests
// and defaults to time.Now.
func NewRateLimiter(quotas map[domain.Priority]Quota, timeSource func() time.Time) *RateLimiter {
	if quotas == nil {
		quotas = DefaultQuotas()
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &RateLimiter{
		quotas:  quotas,
		now:     timeSource,
		windows: make(map[string][]time.Time),
	}
}

// Allow reports whether userID may submit one more message of the given
// priority, recording the attempt when it is admitted.
func (l *RateLimiter) Allow(userID string, p domain.Priority) bool {
	quota, ok := l.quotas[p]
	if !ok || quota.Cap <= 0 || quota.Window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := windowKey(userID, p)
	now := l.now()
	cutoff := now.Add(-quota.Window)

	kept := l.windows[key][:0]
	for _, ts := range l.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= quota.Cap {
		l.windows[key] = kept
		return false
	}
	l.windows[key] = append(kept, now)
	return true
}

// Reset drops all recorded windows for a user, e.g. when their last
// connection goes away.
func (l *RateLimiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for p := domain.Priority(0); p < domain.NumPriorities; p++ {
		delete(l.windows, windowKey(userID, p))
	}
}

func windowKey(userID string, p domain.Priority) string {
	return fmt.Sprintf("%s|%s", userID, p)
}
