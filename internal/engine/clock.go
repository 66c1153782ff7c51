package engine

import "sync/atomic"

// Clock hands out the sequence numbers that order queue entries and
// lifecycle events within one engine.
//
// Seq numbers are logical: they never come from wall-clock time, so traces
// taken from two runs of the same scenario line up exactly.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
