package redis

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_TripsAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Hour)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); err != boom {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("breaker should be open, got %s", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != ErrBreakerOpen {
		t.Fatalf("open breaker should reject, got %v", err)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	boom := errors.New("boom")

	b.Execute(func() error { return boom })
	if b.State() != BreakerOpen {
		t.Fatal("breaker should trip on first failure with maxFailures=1")
	}

	time.Sleep(20 * time.Millisecond)

	// Probe succeeds: breaker closes.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("breaker should close after probe, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	boom := errors.New("boom")

	b.Execute(func() error { return boom })
	time.Sleep(20 * time.Millisecond)
	b.Execute(func() error { return boom })

	if b.State() != BreakerOpen {
		t.Fatalf("failed probe should reopen, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(2, time.Hour)
	boom := errors.New("boom")

	b.Execute(func() error { return boom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return boom })

	if b.State() != BreakerClosed {
		t.Fatalf("interleaved success should keep the breaker closed, got %s", b.State())
	}
}
