package poller

import "time"

// Clock abstracts the timer so tests can drive ticks without waiting out real
// polling intervals
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *time.Ticker
}

// RealClock implements Clock using the system time
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

var _ Clock = RealClock{}
