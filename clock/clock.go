// Package clock provides the Clock collaborator named in §6: monotonic
// millisecond timestamps used by the miner and the flow handler's
// retargeter.
package clock

import "time"

// Clock returns the current time in Unix milliseconds.
type Clock interface {
	NowMillis() int64
}

// SystemClock is the real wall-clock backed Clock.
type SystemClock struct{}

// NowMillis returns time.Now() in Unix milliseconds.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// TestClock is a manually advanced Clock for deterministic tests of the
// miner and retargeter.
type TestClock struct {
	millis int64
}

// NewTestClock creates a TestClock starting at startMillis.
func NewTestClock(startMillis int64) *TestClock {
	return &TestClock{millis: startMillis}
}

// NowMillis implements Clock.
func (c *TestClock) NowMillis() int64 {
	return c.millis
}

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) {
	c.millis += d.Milliseconds()
}

// Set pins the clock to an absolute value.
func (c *TestClock) Set(millis int64) {
	c.millis = millis
}
