// Package breaker implements a single named circuit breaker guarding the
// upstream LLM call.
//
// The teacher keeps one breaker per provider in a failover router; this
// proxy has exactly one configured upstream, so there is exactly one
// breaker instead of a map.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's current posture.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker trips to Open after ErrorThreshold failures inside TimeWindow,
// and probes back to HalfOpen after HalfOpenTimeout.
type Breaker struct {
	mu sync.Mutex

	errorThreshold  int
	timeWindow      time.Duration
	halfOpenTimeout time.Duration

	state       State
	failures    []time.Time
	openedAt    time.Time
	halfOpenHit bool
}

// New returns a closed Breaker with the given thresholds.
func New(errorThreshold int, timeWindow, halfOpenTimeout time.Duration) *Breaker {
	return &Breaker{
		errorThreshold:  errorThreshold,
		timeWindow:      timeWindow,
		halfOpenTimeout: halfOpenTimeout,
		state:           Closed,
	}
}

// Allow reports whether a request may proceed to the upstream call. In
// HalfOpen it allows exactly one probing request at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.halfOpenTimeout {
			b.state = HalfOpen
			b.halfOpenHit = false
			return b.allowHalfOpenLocked()
		}
		return false
	case HalfOpen:
		return b.allowHalfOpenLocked()
	default:
		return true
	}
}

func (b *Breaker) allowHalfOpenLocked() bool {
	if b.halfOpenHit {
		return false
	}
	b.halfOpenHit = true
	return true
}

// RecordSuccess closes the breaker and clears its failure history.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = nil
}

// RecordFailure records a failure. In HalfOpen a single failure reopens the
// breaker immediately. In Closed, ErrorThreshold failures inside TimeWindow
// trips it open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = now
		return
	}

	b.failures = append(b.failures, now)
	cutoff := now.Add(-b.timeWindow)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept

	if len(b.failures) >= b.errorThreshold {
		b.state = Open
		b.openedAt = now
		b.failures = nil
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
