package strategy

import (
	"sync"
	"time"
)

// Scheduler time-gates strategy evaluation per (strategy, symbol) pair. A
// pair is eligible when at least its configured interval has elapsed since
// the last fire. Gating is elapsed-time based rather than wall-clock-modulo,
// so process restarts and missed ticks never cause signal bursts.
//
// The caller must invoke MarkFired exactly once, and only when the strategy
// actually produced a signal: a strategy that declines to signal keeps its
// gate open so the trading window is not silently skipped.
type Scheduler struct {
	mu        sync.Mutex
	intervals map[string]time.Duration // strategy name -> interval
	lastFire  map[gateKey]time.Time
}

type gateKey struct {
	strategy string
	symbol   string
}

// NewScheduler returns an empty Scheduler with no gates set. Pairs without a
// recorded fire are always eligible, so the first evaluation after start
// needs no warm-up.
func NewScheduler() *Scheduler {
	return &Scheduler{
		intervals: make(map[string]time.Duration),
		lastFire:  make(map[gateKey]time.Time),
	}
}

// SetInterval configures the minimum time between fires for a strategy.
func (s *Scheduler) SetInterval(strategyName string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals[strategyName] = interval
}

// ShouldEvaluate reports whether the (strategy, symbol) pair is eligible at
// now. It does not consume the gate; MarkFired does.
func (s *Scheduler) ShouldEvaluate(strategyName, symbol string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastFire[gateKey{strategyName, symbol}]
	if !ok {
		return true
	}
	return now.Sub(last) >= s.intervals[strategyName]
}

// MarkFired records that the strategy produced a signal for the symbol at
// now, closing the gate for the configured interval.
func (s *Scheduler) MarkFired(strategyName, symbol string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFire[gateKey{strategyName, symbol}] = now
}
