package risk

import (
	"sync"
	"time"
)

// DailyCounter tracks approved trades per strategy within the current UTC
// calendar day. Counts are monotonically non-decreasing within a day and
// reset at UTC midnight.
type DailyCounter struct {
	mu     sync.Mutex
	day    time.Time // UTC midnight anchoring the current counts
	counts map[string]int
}

// NewDailyCounter returns a counter anchored to the day of first use.
func NewDailyCounter() *DailyCounter {
	return &DailyCounter{counts: make(map[string]int)}
}

// Count returns the number of trades recorded for the strategy today.
func (c *DailyCounter) Count(strategy string, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(now)
	return c.counts[strategy]
}

// TryConsume atomically consumes one unit of the strategy's daily budget,
// returning false without consuming when max is already reached. Check and
// consume happen under one lock, so concurrent callers can never overshoot
// the cap between reading the count and recording the trade.
func (c *DailyCounter) TryConsume(strategy string, now time.Time, max int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(now)
	if c.counts[strategy] >= max {
		return false
	}
	c.counts[strategy]++
	return true
}

// rollover resets all counts when now has crossed UTC midnight relative to
// the anchored day. Callers must hold the mutex.
func (c *DailyCounter) rollover(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(c.day) {
		c.day = day
		c.counts = make(map[string]int)
	}
}
