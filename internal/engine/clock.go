package engine

import "sync/atomic"

// Clock is a monotonic logical clock for outcome ordering.
//
// Each executed rule is stamped with a strictly increasing order index from
// this clock, so recorded order reflects actual execution order even when
// consecutive rules finish within the same wall-clock tick.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the engine's sequential execution means only one goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next order index and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current order index without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
