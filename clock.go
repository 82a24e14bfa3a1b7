package engine

import "time"

// MaxFrameDelta caps the delta a Clock reports, so a stall (a debugger
// break, a dragged window) does not turn into one huge simulation step.
const MaxFrameDelta = 250 * time.Millisecond

// Clock measures the time between frames.
type Clock struct {
	now  func() time.Time
	last time.Time
}

// NewClock returns a clock started at the current time.
func NewClock() *Clock {
	c := &Clock{now: time.Now}
	c.Reset()
	return c
}

// Reset restarts the measurement from now.
func (c *Clock) Reset() { c.last = c.now() }

// Tick returns the seconds elapsed since the previous Tick or Reset,
// capped at MaxFrameDelta.
func (c *Clock) Tick() float32 {
	t := c.now()
	d := min(t.Sub(c.last), MaxFrameDelta)
	c.last = t
	if d < 0 {
		return 0
	}
	return float32(d.Seconds())
}
