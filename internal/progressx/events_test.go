package progressx

import (
	"testing"
	"time"
)

func TestCounterBytesIsSynchronousRegardlessOfThrottle(t *testing.T) {
	c := NewCounter(nil, time.Hour)
	c.Add(10)
	c.Add(5)
	if got := c.Bytes(); got != 15 {
		t.Fatalf("Bytes() = %d, want 15", got)
	}
}

func TestCounterThrottlesEmission(t *testing.T) {
	var events []Event
	sink := SinkFunc(func(e Event) { events = append(events, e) })
	c := NewCounter(sink, time.Hour)

	c.Add(10)
	c.Add(10)
	c.Add(10)

	if len(events) != 1 {
		t.Fatalf("got %d emitted events, want exactly 1 under a long throttle window", len(events))
	}
	if events[0].TotalSoFar != 10 {
		t.Fatalf("got TotalSoFar=%d, want 10 (the running total at first emission)", events[0].TotalSoFar)
	}
}

func TestCounterFlushAlwaysEmits(t *testing.T) {
	var events []Event
	sink := SinkFunc(func(e Event) { events = append(events, e) })
	c := NewCounter(sink, time.Hour)

	c.Add(42)
	c.Flush()

	if len(events) < 2 {
		t.Fatalf("got %d events, want at least 2 (initial + flush)", len(events))
	}
	last := events[len(events)-1]
	if last.TotalSoFar != 42 {
		t.Fatalf("flushed TotalSoFar=%d, want 42", last.TotalSoFar)
	}
}
