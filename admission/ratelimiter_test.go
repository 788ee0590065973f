package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voicehub/domain"
)

// fakeClock advances only when told to, so window math is deterministic.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiter_CapPerWindow(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := NewRateLimiter(DefaultQuotas(), clock.Now)

	// 10 low-priority admissions pass, the 11th is rejected within the window.
	for i := 0; i < 10; i++ {
		req.True(limiter.Allow("u1", domain.PriorityLow), "admission %d should pass", i+1)
		clock.Advance(time.Second)
	}
	req.False(limiter.Allow("u1", domain.PriorityLow))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := NewRateLimiter(DefaultQuotas(), clock.Now)

	for i := 0; i < 10; i++ {
		req.True(limiter.Allow("u1", domain.PriorityLow))
	}
	req.False(limiter.Allow("u1", domain.PriorityLow))

	// Once the window has passed the old entries are pruned lazily.
	clock.Advance(61 * time.Second)
	req.True(limiter.Allow("u1", domain.PriorityLow))
}

func TestRateLimiter_IsolatedPerUserAndPriority(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := NewRateLimiter(DefaultQuotas(), clock.Now)

	for i := 0; i < 10; i++ {
		req.True(limiter.Allow("u1", domain.PriorityLow))
	}
	req.False(limiter.Allow("u1", domain.PriorityLow))

	// Other users and other priority classes keep their own budget.
	req.True(limiter.Allow("u2", domain.PriorityLow))
	req.True(limiter.Allow("u1", domain.PriorityNormal))
}

func TestRateLimiter_Reset(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := NewRateLimiter(DefaultQuotas(), clock.Now)

	for i := 0; i < 10; i++ {
		req.True(limiter.Allow("u1", domain.PriorityLow))
	}
	req.False(limiter.Allow("u1", domain.PriorityLow))

	limiter.Reset("u1")
	req.True(limiter.Allow("u1", domain.PriorityLow))
}
