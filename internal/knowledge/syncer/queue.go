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

// Package syncer coalesces development events into batched vault notes.
// This file holds the pending-event queue shared between producers and the
// flusher goroutine.
package syncer

import (
	"sync"
	"time"
)

// DefaultMaxPending caps the queue. Beyond it the oldest pending event is
// dropped so a stalled vault cannot grow memory without bound.
const DefaultMaxPending = 10_000

// queue is the mutex-guarded pending list. Producers push, the flusher
// drains; both paths are O(1) amortized so SyncEvent stays sub-millisecond.
type queue struct {
	mu         sync.Mutex
	pending    []Event
	maxPending int
	lastFlush  time.Time
}

func newQueue(maxPending int) *queue {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &queue{maxPending: maxPending}
}

// push appends e and reports scheduling facts observed atomically with the
// append: whether the queue was empty beforehand, whether the debounce
// window has lapsed since the last flush, and any event dropped to honor
// the cap.
func (q *queue) push(e Event, window time.Duration) (wasEmpty, windowLapsed bool, dropped *Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	wasEmpty = len(q.pending) == 0
	windowLapsed = q.lastFlush.IsZero() || time.Since(q.lastFlush) > window

	if len(q.pending) >= q.maxPending {
		d := q.pending[0]
		q.pending = q.pending[1:]
		dropped = &d
	}
	q.pending = append(q.pending, e)
	return wasEmpty, windowLapsed, dropped
}

// drain atomically moves the pending list out, installing a fresh one.
func (q *queue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

// markFlushed records the completion instant of a flush.
func (q *queue) markFlushed(at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastFlush = at
}

// len returns the number of pending events.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// lastFlushAt returns the last flush instant (zero before the first flush).
func (q *queue) lastFlushAt() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastFlush
}
