// Package resilience holds the small dependency-protection primitives shared
// by the external clients.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes a Breaker. A disabled config yields a nil Breaker,
// whose methods are all no-ops, so callers need no enabled flag of their own.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxReq   int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 15 * time.Second
	}
	if c.HalfOpenMaxReq < 1 {
		c.HalfOpenMaxReq = 2
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker with a half-open probe
// phase. All methods are safe on a nil receiver.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	openTimeout      time.Duration
	halfOpenMaxReq   int

	state             BreakerState
	failures          int
	openedAt          time.Time
	halfOpenInFlight  int
	halfOpenSuccesses int
	now               func() time.Time
}

// NewBreaker builds a breaker from cfg, or returns nil when cfg is disabled.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if !cfg.Enabled {
		return nil
	}
	cfg = cfg.withDefaults()

	return &Breaker{
		failureThreshold: cfg.FailureThreshold,
		openTimeout:      cfg.OpenTimeout,
		halfOpenMaxReq:   cfg.HalfOpenMaxReq,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// Allow reports whether a request may proceed, reserving a half-open slot
// when the breaker is probing.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.openTimeout {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.halfOpenInFlight = 0
		b.halfOpenSuccesses = 0
	}

	if b.state == BreakerHalfOpen {
		if b.halfOpenInFlight >= b.halfOpenMaxReq {
			return ErrBreakerOpen
		}
		b.halfOpenInFlight++
	}

	return nil
}

// Observe records the outcome of a request previously admitted by Allow.
// Only errors the caller classified as dependency failures should be passed
// as failed=true.
func (b *Breaker) Observe(failed bool) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if failed {
		switch b.state {
		case BreakerClosed:
			b.failures++
			if b.failures >= b.failureThreshold {
				b.trip()
			}
		case BreakerHalfOpen:
			if b.halfOpenInFlight > 0 {
				b.halfOpenInFlight--
			}
			b.trip()
		case BreakerOpen:
			b.openedAt = b.now()
		}
		return
	}

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.halfOpenMaxReq && b.halfOpenInFlight == 0 {
			b.reset()
		}
	}
}

// State reports the current breaker state, accounting for an expired open
// window.
func (b *Breaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.openTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
}

func (b *Breaker) reset() {
	b.state = BreakerClosed
	b.failures = 0
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
	b.openedAt = time.Time{}
}
