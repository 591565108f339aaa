package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func newFakeThrottle(interval time.Duration) (*Throttle, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	th := NewThrottle(interval)
	th.now = clk.Now
	th.sleep = clk.Sleep
	return th, clk
}

func TestThrottle_SpacesCalls(t *testing.T) {
	th, clk := newFakeThrottle(2 * time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	if len(clk.slept) != 3 {
		t.Fatalf("expected 3 sleeps, got %v", clk.slept)
	}
	if clk.slept[0] != 0 {
		t.Errorf("first call should not wait, waited %v", clk.slept[0])
	}
	for i := 1; i < 3; i++ {
		if clk.slept[i] < 1999*time.Millisecond || clk.slept[i] > 2001*time.Millisecond {
			t.Errorf("call %d waited %v, want ~2s", i, clk.slept[i])
		}
	}
}

func TestThrottle_NoWaitAfterIdle(t *testing.T) {
	th, clk := newFakeThrottle(2 * time.Second)
	ctx := context.Background()

	_ = th.Wait(ctx)
	clk.now = clk.now.Add(10 * time.Second)
	_ = th.Wait(ctx)

	if clk.slept[1] != 0 {
		t.Errorf("expected no wait after idle period, got %v", clk.slept[1])
	}
}

func TestThrottle_Disabled(t *testing.T) {
	var nilThrottle *Throttle
	if err := nilThrottle.Wait(context.Background()); err != nil {
		t.Errorf("nil throttle: %v", err)
	}
	if nilThrottle.Interval() != 0 {
		t.Error("nil throttle should report zero interval")
	}

	th := NewThrottle(0)
	for i := 0; i < 5; i++ {
		if err := th.Wait(context.Background()); err != nil {
			t.Fatalf("zero-interval throttle: %v", err)
		}
	}
}

func TestThrottle_Cancelled(t *testing.T) {
	th, _ := newFakeThrottle(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := th.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestThrottle_Interval(t *testing.T) {
	if got := NewThrottle(1500 * time.Millisecond).Interval(); got != 1500*time.Millisecond {
		t.Errorf("Interval() = %v", got)
	}
}
