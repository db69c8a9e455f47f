package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFirstEvaluationAlwaysEligible(t *testing.T) {
	s := NewScheduler()
	s.SetInterval("alternator", 900*time.Second)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, s.ShouldEvaluate("alternator", "BTCUSDT", now))
}

func TestSchedulerGateClosesOnlyAfterFire(t *testing.T) {
	s := NewScheduler()
	s.SetInterval("momentum", 60*time.Second)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Eligible evaluation that produces no signal: the gate must stay open.
	require.True(t, s.ShouldEvaluate("momentum", "BTCUSDT", now))
	assert.True(t, s.ShouldEvaluate("momentum", "BTCUSDT", now.Add(time.Second)),
		"declining to signal must not consume the gate")

	// Firing consumes the gate for the full interval.
	s.MarkFired("momentum", "BTCUSDT", now)
	assert.False(t, s.ShouldEvaluate("momentum", "BTCUSDT", now.Add(59*time.Second)))
	assert.True(t, s.ShouldEvaluate("momentum", "BTCUSDT", now.Add(60*time.Second)))
}

func TestSchedulerGatesArePerSymbol(t *testing.T) {
	s := NewScheduler()
	s.SetInterval("alternator", 60*time.Second)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.MarkFired("alternator", "BTCUSDT", now)

	assert.False(t, s.ShouldEvaluate("alternator", "BTCUSDT", now.Add(time.Second)))
	assert.True(t, s.ShouldEvaluate("alternator", "ETHUSDT", now.Add(time.Second)),
		"firing on one symbol must not gate another")
}

// A 15-minute alternator evaluated every tick fires exactly on interval
// boundaries, not on every tick.
func TestSchedulerFifteenMinuteCadence(t *testing.T) {
	s := NewScheduler()
	s.SetInterval("alternator", 900*time.Second)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var fires []time.Duration
	for elapsed := time.Duration(0); elapsed <= 1900*time.Second; elapsed += 5 * time.Second {
		now := start.Add(elapsed)
		if s.ShouldEvaluate("alternator", "BTCUSDT", now) {
			s.MarkFired("alternator", "BTCUSDT", now)
			fires = append(fires, elapsed)
		}
	}

	require.Equal(t, []time.Duration{0, 900 * time.Second, 1800 * time.Second}, fires)
}
