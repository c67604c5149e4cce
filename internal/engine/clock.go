package engine

import "sync/atomic"

// TickStamp orders events within and across ticks.
// NEVER use wall-clock timestamps for ordering: the stamp is the only
// time the engine knows.
type TickStamp struct {
	Tick uint64
	Seq  uint32
}

// Before reports whether s precedes other.
func (s TickStamp) Before(other TickStamp) bool {
	if s.Tick != other.Tick {
		return s.Tick < other.Tick
	}
	return s.Seq < other.Seq
}

// Clock is the engine's logical tick clock.
//
// Thread-safety: reads are atomic so inspectors may sample the current
// tick from any goroutine, but advancing is done only by the tick loop.
type Clock struct {
	tick atomic.Uint64
	seq  atomic.Uint32
}

// NewClock creates a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a specific tick.
// Used by restore to continue a replayed run.
func NewClockAt(tick uint64) *Clock {
	c := &Clock{}
	c.tick.Store(tick)
	return c
}

// NextTick advances to the next tick and resets the in-tick sequence.
func (c *Clock) NextTick() uint64 {
	c.seq.Store(0)
	return c.tick.Add(1)
}

// CurrentTick returns the current tick number.
func (c *Clock) CurrentTick() uint64 {
	return c.tick.Load()
}

// Next returns the next stamp within the current tick.
func (c *Clock) Next() TickStamp {
	return TickStamp{Tick: c.tick.Load(), Seq: c.seq.Add(1) - 1}
}

// Current returns the current stamp without advancing.
func (c *Clock) Current() TickStamp {
	return TickStamp{Tick: c.tick.Load(), Seq: c.seq.Load()}
}
