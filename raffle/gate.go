package raffle

import "time"

// Clock returns the current time. It is swapped out in tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// IntervalGate tracks when the last cycle started and whether enough time
// has passed to start another one
type IntervalGate struct {
	interval      time.Duration
	lastTimestamp time.Time
}

// NewIntervalGate creates a gate that considers the last cycle to have started at start
func NewIntervalGate(interval time.Duration, start time.Time) *IntervalGate {
	return &IntervalGate{
		interval:      interval,
		lastTimestamp: start,
	}
}

// HasElapsed returns whether at least one interval has passed since the last cycle start
func (g *IntervalGate) HasElapsed(now time.Time) bool {
	return now.Sub(g.lastTimestamp) >= g.interval
}

// Elapsed returns the time since the last cycle start
func (g *IntervalGate) Elapsed(now time.Time) time.Duration {
	return now.Sub(g.lastTimestamp)
}

// MarkSettled records the start of a cycle. The interval is measured between cycle starts
func (g *IntervalGate) MarkSettled(now time.Time) {
	g.lastTimestamp = now
}

// LastTimestamp returns the time the last cycle started
func (g *IntervalGate) LastTimestamp() time.Time {
	return g.lastTimestamp
}

// Interval returns the minimum time between cycle starts
func (g *IntervalGate) Interval() time.Duration {
	return g.interval
}
