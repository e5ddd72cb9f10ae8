package clock

import (
	"testing"
	"time"
)

func TestTestClockAdvanceAndSet(t *testing.T) {
	c := NewTestClock(1000)
	if got := c.NowMillis(); got != 1000 {
		t.Fatalf("NowMillis() = %d, want 1000", got)
	}
	c.Advance(2 * time.Second)
	if got := c.NowMillis(); got != 3000 {
		t.Fatalf("after Advance(2s), NowMillis() = %d, want 3000", got)
	}
	c.Set(42)
	if got := c.NowMillis(); got != 42 {
		t.Fatalf("after Set(42), NowMillis() = %d, want 42", got)
	}
}

func TestSystemClockIsMonotonicNonDecreasing(t *testing.T) {
	var c SystemClock
	a := c.NowMillis()
	time.Sleep(time.Millisecond)
	b := c.NowMillis()
	if b < a {
		t.Fatalf("expected NowMillis to not decrease: %d then %d", a, b)
	}
}
