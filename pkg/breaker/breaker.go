// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package breaker implements a three-state circuit breaker around unreliable
// units of work. A run of tracked failures opens the circuit; while open,
// calls are rejected in O(1) without scheduling the work; after a recovery
// timeout a single probe is let through to decide between closing again and
// re-opening.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit is open (or a half-open probe is
// already in flight) and the call was rejected without invoking the work.
// Callers may retry after the breaker's recovery timeout.
var ErrOpen = errors.New("breaker: circuit open")

// State enumerates the breaker states.
type State uint8

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the conventional upper-case state label.
func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive tracked failures that
	// opens the circuit. Defaults to 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a probe is
	// allowed. Defaults to 60s.
	RecoveryTimeout time.Duration

	// Tracked reports whether an error counts toward opening the circuit.
	// Errors for which it returns false are returned to the caller without
	// any state change. Defaults to counting every non-nil error.
	Tracked func(error) bool
}

// Breaker wraps units of work with fail-fast behavior. The zero value is not
// usable; construct with New.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	threshold int
	recovery  time.Duration
	tracked   func(error) bool
	now       func() time.Time
}

// New creates a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.Tracked == nil {
		cfg.Tracked = func(err error) bool { return err != nil }
	}
	return &Breaker{
		state:     Closed,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
		tracked:   cfg.Tracked,
		now:       time.Now,
	}
}

// Do runs work under the breaker. In the open state it returns ErrOpen
// without invoking work; the rejection cost is a mutex acquisition and a
// clock read, independent of the work's latency. In the half-open state
// exactly one probe runs at a time; concurrent callers get ErrOpen.
func (b *Breaker) Do(ctx context.Context, work func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := work(ctx)
	b.settle(err)
	return err
}

// Call is Do for work that produces a value.
func Call[T any](ctx context.Context, b *Breaker, work func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive tracked-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// admit decides whether a call may proceed, performing the OPEN → HALF_OPEN
// transition when the recovery timeout has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.openedAt) <= b.recovery {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probing = true
		return nil
	default: // HalfOpen
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
}

// settle applies the outcome of an admitted call.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = Closed
		b.failures = 0
		b.openedAt = time.Time{}
		b.probing = false
		return
	}

	if !b.tracked(err) {
		// Not our kind of failure: pass it through untouched, but release
		// the probe slot so a later call can still test recovery.
		b.probing = false
		return
	}

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = b.now()
		b.probing = false
	case Closed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = Open
			b.openedAt = b.now()
		}
	}
	// Already Open (call admitted before the trip): nothing to update.
}
