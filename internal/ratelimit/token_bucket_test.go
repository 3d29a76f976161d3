package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucket_StartsFullAndDrains(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 3, 1)

	for i := 0; i < 3; i++ {
		if !b.Allow(1) {
			t.Fatalf("Allow(1) #%d=false, want true", i)
		}
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) on empty bucket=true, want false")
	}
}

func TestTokenBucket_RefillsAtRate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 10, 2)

	if !b.Allow(10) {
		t.Fatal("initial Allow(10)=false, want true")
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) immediately after drain=true, want false")
	}

	clock.Advance(500 * time.Millisecond) // +1 token
	if !b.Allow(1) {
		t.Fatal("Allow(1) after 500ms at 2/s=false, want true")
	}
	if b.Allow(1) {
		t.Fatal("second Allow(1) after 500ms=true, want false")
	}

	clock.Advance(time.Hour) // clamps to capacity
	if !b.Allow(10) {
		t.Fatal("Allow(10) after long idle=false, want true")
	}
}

func TestTokenBucket_ZeroAndNegativeCosts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 0, 0)

	if !b.Allow(0) {
		t.Fatal("Allow(0)=false, want true")
	}
	if !b.Allow(-5) {
		t.Fatal("Allow(-5)=false, want true")
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) with zero capacity=true, want false")
	}
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 1, 1)

	if !b.Allow(1) {
		t.Fatal("initial Allow(1)=false, want true")
	}

	clock.now = clock.now.Add(-time.Minute)
	if b.Allow(1) {
		t.Fatal("Allow(1) after clock regression=true, want false")
	}

	clock.Advance(2 * time.Second)
	if !b.Allow(1) {
		t.Fatal("Allow(1) after clock recovered=false, want true")
	}
}
