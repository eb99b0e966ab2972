package breaker

import (
	"testing"
	"time"
)

func TestClosedAllowsByDefault(t *testing.T) {
	b := New(3, time.Minute, time.Second)
	if !b.Allow() {
		t.Fatal("expected a fresh breaker to allow")
	}
}

func TestTripsOpenAfterThreshold(t *testing.T) {
	b := New(3, time.Minute, time.Hour)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.State() != Open {
		t.Fatalf("expected Open after %d failures, got %v", 3, b.State())
	}
	if b.Allow() {
		t.Fatal("expected Allow to report false while open")
	}
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	b := New(1, time.Minute, 10*time.Millisecond)
	b.RecordFailure()
	if b.State() != Open {
		t.Fatal("expected Open after a single failure with threshold 1")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected Allow to let one probe through after the half-open timeout")
	}
	if b.Allow() {
		t.Fatal("expected only one probe to be allowed while half-open")
	}
}

func TestSuccessClosesBreaker(t *testing.T) {
	b := New(1, time.Minute, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow() // consume the half-open probe slot
	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected Closed after a recorded success, got %v", b.State())
	}
	if !b.Allow() {
		t.Fatal("expected Allow to report true once closed")
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(1, time.Minute, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected a half-open failure to reopen the breaker, got %v", b.State())
	}
}

func TestFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	b := New(2, 10*time.Millisecond, time.Hour)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.RecordFailure()
	if b.State() != Closed {
		t.Fatalf("expected failures outside the time window to be pruned, got %v", b.State())
	}
}
