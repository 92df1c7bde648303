package quota

import (
	"sync"
	"time"
)

// Authority decides whether a send attempt may proceed. Implementations must
// make the read-then-increment pair safe under concurrent senders. Increment
// is only called after a successful provider acceptance: denied and failed
// sends never consume quota.
type Authority interface {
	CanSend() bool
	Increment()
	Remaining() (daily, hourly int)
}

// Ceilings are the configured window limits.
type Ceilings struct {
	Daily  int
	Hourly int
}

// WindowCounter is the in-process Authority. Correct only for a single active
// instance; multi-instance deployments must use RedisAuthority.
type WindowCounter struct {
	ceilings Ceilings
	now      func() time.Time

	mu     sync.Mutex
	daily  map[string]int
	hourly map[string]int
}

func NewWindowCounter(ceilings Ceilings) *WindowCounter {
	return &WindowCounter{
		ceilings: ceilings,
		now:      time.Now,
		daily:    make(map[string]int),
		hourly:   make(map[string]int),
	}
}

// dayKey and hourKey are computed from the wall clock at call time, so a check
// spanning a window boundary naturally starts a fresh window.
func dayKey(t time.Time) string  { return t.Format("2006-01-02") }
func hourKey(t time.Time) string { return t.Format("2006-01-02T15") }

func (c *WindowCounter) CanSend() bool {
	t := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.daily[dayKey(t)] < c.ceilings.Daily && c.hourly[hourKey(t)] < c.ceilings.Hourly
}

func (c *WindowCounter) Increment() {
	t := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.daily[dayKey(t)]++
	c.hourly[hourKey(t)]++
}

func (c *WindowCounter) Remaining() (daily, hourly int) {
	t := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	daily = c.ceilings.Daily - c.daily[dayKey(t)]
	hourly = c.ceilings.Hourly - c.hourly[hourKey(t)]
	if daily < 0 {
		daily = 0
	}
	if hourly < 0 {
		hourly = 0
	}
	return daily, hourly
}

// Prune drops expired window buckets. Past windows are never resurrected: keys
// are derived from the clock, so a pruned stale bucket can never be read again.
func (c *WindowCounter) Prune() {
	t := c.now()
	day, hour := dayKey(t), hourKey(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.daily {
		if k != day {
			delete(c.daily, k)
		}
	}
	for k := range c.hourly {
		if k != hour {
			delete(c.hourly, k)
		}
	}
}
