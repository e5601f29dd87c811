package tracker

import (
	"sync/atomic"
	"time"
)

// Runtime bounds for the mutable settings. Values outside the range are
// clamped, never rejected.
const (
	MinPollInterval = 10 * time.Second
	MaxPollInterval = 300 * time.Second
	DefaultInterval = 60 * time.Second

	MinSpamThreshold     = 3
	MaxSpamThreshold     = 20
	DefaultSpamThreshold = 5
)

// Settings holds the runtime-tunable knobs of the tracking loop. Both values
// can be changed while the loop is running; they are read fresh at the start
// of each cycle, so changes take effect from the next cycle.
type Settings struct {
	intervalSec atomic.Int64
	threshold   atomic.Int64
}

// NewSettings creates Settings with the given initial values, clamped to
// their bounds. Zero values select the defaults.
func NewSettings(interval time.Duration, spamThreshold int) *Settings {
	s := &Settings{}
	if interval == 0 {
		interval = DefaultInterval
	}
	if spamThreshold == 0 {
		spamThreshold = DefaultSpamThreshold
	}
	s.SetInterval(interval)
	s.SetSpamThreshold(spamThreshold)
	return s
}

// Interval returns the current poll interval.
func (s *Settings) Interval() time.Duration {
	return time.Duration(s.intervalSec.Load()) * time.Second
}

// SetInterval updates the poll interval, clamping to [10s, 300s], and
// returns the value actually stored.
func (s *Settings) SetInterval(d time.Duration) time.Duration {
	d = clampDuration(d, MinPollInterval, MaxPollInterval)
	s.intervalSec.Store(int64(d / time.Second))
	return d
}

// SpamThreshold returns the current distinct-coin spam threshold.
func (s *Settings) SpamThreshold() int {
	return int(s.threshold.Load())
}

// SetSpamThreshold updates the spam threshold, clamping to [3, 20], and
// returns the value actually stored.
func (s *Settings) SetSpamThreshold(n int) int {
	if n < MinSpamThreshold {
		n = MinSpamThreshold
	}
	if n > MaxSpamThreshold {
		n = MaxSpamThreshold
	}
	s.threshold.Store(int64(n))
	return n
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
