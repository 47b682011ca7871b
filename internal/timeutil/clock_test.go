package timeutil

import (
	"testing"
	"time"
)

func TestMockClock_AdvanceFiresTicker(t *testing.T) {
	start := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	tk := c.NewTicker(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired before its period")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-tk.C():
		if !got.Equal(start.Add(time.Second)) {
			t.Errorf("tick time = %v, want %v", got, start.Add(time.Second))
		}
	default:
		t.Fatal("ticker did not fire after one period")
	}

	tk.Stop()
	c.Advance(5 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
	if !tk.(*MockTicker).Stopped() {
		t.Error("expected ticker to report stopped")
	}
	if c.Tickers() != 1 {
		t.Errorf("Tickers() = %d, want 1", c.Tickers())
	}
}

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	if c.Now().IsZero() {
		t.Error("RealClock.Now returned zero time")
	}
	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}
