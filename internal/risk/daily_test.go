package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDailyCounterConsumeAndCount(t *testing.T) {
	c := NewDailyCounter()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, c.Count("alternator", now))
	assert.True(t, c.TryConsume("alternator", now, 10))
	assert.True(t, c.TryConsume("alternator", now, 10))
	assert.Equal(t, 2, c.Count("alternator", now))

	// Counters are per strategy.
	assert.Equal(t, 0, c.Count("momentum", now))
}

func TestDailyCounterConsumeStopsAtMax(t *testing.T) {
	c := NewDailyCounter()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, c.TryConsume("alternator", now, 3))
	}
	assert.False(t, c.TryConsume("alternator", now, 3))
	assert.Equal(t, 3, c.Count("alternator", now), "a refused consume must not change the count")
}

// However goroutines interleave, the consumed total never exceeds the cap.
func TestDailyCounterConcurrentConsumeNeverOvershoots(t *testing.T) {
	c := NewDailyCounter()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	const max = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	consumed := 0

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryConsume("alternator", now, max) {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, consumed)
	assert.Equal(t, max, c.Count("alternator", now))
}

func TestDailyCounterResetsAtUTCMidnight(t *testing.T) {
	c := NewDailyCounter()
	evening := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	c.TryConsume("alternator", evening, 10)
	c.TryConsume("alternator", evening, 10)

	// One minute later, but a new UTC day.
	morning := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, c.Count("alternator", morning))
	assert.True(t, c.TryConsume("alternator", morning, 1), "the new day's budget is fresh")
}

func TestDailyCounterSameDayNoReset(t *testing.T) {
	c := NewDailyCounter()
	morning := time.Date(2025, 6, 1, 0, 0, 1, 0, time.UTC)
	night := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)

	c.TryConsume("alternator", morning, 10)
	assert.Equal(t, 1, c.Count("alternator", night))
}
