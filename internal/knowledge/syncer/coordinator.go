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
// This file implements the coordinator: a single flusher goroutine that
// serializes all flushes, debounces producer bursts into one note per
// window, and fans flushed events out to the belief tracker.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"udo/internal/knowledge/storage"
	"udo/internal/knowledge/telemetry"
	"udo/internal/knowledge/vault"
)

// Defaults for the debounce window, flush retry policy, and backup loop.
const (
	DefaultWindow         = 3 * time.Second
	DefaultBackupInterval = time.Hour

	// Flush retry: exponential backoff at 1s × 2ⁿ, three attempts total,
	// then the batch goes to the dead-letter log.
	flushRetryBase = time.Second
	flushRetryMax  = 2 // retries after the first attempt

	probeTimeout = 30 * time.Second
)

// ErrShuttingDown is returned to producers calling SyncEvent or ForceFlush
// after Stop.
var ErrShuttingDown = errors.New("syncer: shutting down")

// Probe reports whether there are changes worth a periodic_backup event
// (typically a VCS status check).
type Probe func(ctx context.Context) (bool, error)

// Config configures a Coordinator.
type Config struct {
	// Window is the debounce interval. Defaults to 3s.
	Window time.Duration

	// MaxPending caps the queue; see DefaultMaxPending.
	MaxPending int

	// StateDir receives the sync_state.json snapshot and the dead-letter
	// log. Required.
	StateDir string

	// BackupInterval is the periodic-backup tick. Defaults to 1h.
	BackupInterval time.Duration

	// Probe is the changes-present check for periodic backups. Nil
	// disables the backup loop.
	Probe Probe

	// Mapper derives belief observations from flushed events. Nil falls
	// back to DefaultObservationMapper.
	Mapper ObservationMapper

	// Sink receives derived observations. Nil disables the fan-out.
	Sink ObservationSink

	// OnFlush runs after every non-empty flush (successful or
	// dead-lettered), outside the queue lock. Used to invalidate search
	// caches.
	OnFlush func()
}

type flushResult struct {
	n   int
	err error
}

// Coordinator owns the event queue and the single flusher goroutine. All
// flush bodies execute on that goroutine, which is what makes the
// at-most-one-flush invariant structural rather than lock-enforced.
type Coordinator struct {
	cfg        Config
	vault      *vault.Store
	queue      *queue
	hist       *history
	deadLetter *storage.JSONLog
	log        zerolog.Logger

	notifyCh      chan struct{}
	forceCh       chan chan flushResult
	stopCh        chan struct{}
	wg            sync.WaitGroup
	wantImmediate atomic.Bool
	stopped       atomic.Bool
	started       atomic.Bool
}

// NewCoordinator wires a coordinator over the given vault store. Call Start
// before producing events.
func NewCoordinator(cfg Config, store *vault.Store, log zerolog.Logger) *Coordinator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.BackupInterval <= 0 {
		cfg.BackupInterval = DefaultBackupInterval
	}
	if cfg.Mapper == nil {
		cfg.Mapper = DefaultObservationMapper
	}
	return &Coordinator{
		cfg:        cfg,
		vault:      store,
		queue:      newQueue(cfg.MaxPending),
		hist:       &history{},
		deadLetter: storage.DeadLetterLog(cfg.StateDir),
		log:        log.With().Str("component", "syncer").Logger(),
		notifyCh:   make(chan struct{}, 1),
		forceCh:    make(chan chan flushResult),
		stopCh:     make(chan struct{}),
	}
}

// Start restores the persisted sync history and launches the flusher and,
// when a probe is configured, the periodic-backup loop.
func (c *Coordinator) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("syncer: already started")
	}
	if err := c.hist.loadState(c.cfg.StateDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn().Err(err).Msg("could not restore sync state; starting fresh")
	}

	c.wg.Add(1)
	go c.run()
	if c.cfg.Probe != nil {
		c.wg.Add(1)
		go c.backupLoop()
	}
	c.log.Info().Dur("window", c.cfg.Window).Bool("vault_available", c.vault.Available()).
		Msg("sync coordinator started")
	return nil
}

// Stop cancels the debounce timer, waits for any in-flight flush, runs one
// terminal flush, and persists the sync history. Idempotent.
func (c *Coordinator) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stopCh)
	c.wg.Wait()

	if err := c.hist.saveState(c.cfg.StateDir); err != nil {
		return fmt.Errorf("syncer: persist state: %w", err)
	}
	c.log.Info().Msg("sync coordinator stopped")
	return nil
}

// SyncEvent enqueues one event. It never waits for persistence: the cost is
// an append under the queue mutex plus a non-blocking channel send. After
// Stop it fails with ErrShuttingDown.
func (c *Coordinator) SyncEvent(eventType string, data map[string]any) error {
	if c.stopped.Load() {
		return ErrShuttingDown
	}

	e := newEvent(eventType, data)
	wasEmpty, lapsed, dropped := c.queue.push(e, c.cfg.Window)
	telemetry.ObserveEvent()
	telemetry.SetPending(c.queue.len())

	if dropped != nil {
		c.dropToDeadLetter("queue full", []Event{*dropped})
	}

	// First event of an idle period flushes immediately; everything else
	// rides the debounce timer. Only the producer that found the queue
	// empty can set the immediate flag, so concurrent producers cannot
	// double-schedule.
	if wasEmpty && lapsed {
		c.wantImmediate.Store(true)
	}
	select {
	case c.notifyCh <- struct{}{}:
	default:
	}
	return nil
}

// ForceFlush cancels any armed timer and flushes synchronously, returning
// the number of events persisted.
func (c *Coordinator) ForceFlush(ctx context.Context) (int, error) {
	if c.stopped.Load() {
		return 0, ErrShuttingDown
	}
	reply := make(chan flushResult, 1)
	select {
	case c.forceCh <- reply:
	case <-c.stopCh:
		return 0, ErrShuttingDown
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stats is the §6 sync_statistics payload.
type Stats struct {
	TotalSyncs       int64     `json:"total_syncs"`
	TotalEvents      int64     `json:"total_events"`
	BatchingRate     float64   `json:"batching_rate"`
	PendingEvents    int       `json:"pending_events"`
	VaultAvailable   bool      `json:"vault_available"`
	LastSyncAt       time.Time `json:"last_sync_at"`
	DeadLetterEvents int64     `json:"dead_letter_events"`
}

// Statistics returns a snapshot of the coordinator counters. BatchingRate
// is the fraction of per-event writes avoided by coalescing.
func (c *Coordinator) Statistics() Stats {
	s := c.hist.snapshot()
	stats := Stats{
		TotalSyncs:       s.TotalSyncs,
		TotalEvents:      s.TotalEvents,
		PendingEvents:    c.queue.len(),
		VaultAvailable:   c.vault.Available(),
		LastSyncAt:       c.queue.lastFlushAt(),
		DeadLetterEvents: s.DeadLetterEvents,
	}
	if s.TotalEvents > 0 {
		stats.BatchingRate = 1 - float64(s.TotalSyncs)/float64(s.TotalEvents)
	}
	return stats
}

// History returns the retained batch records, oldest first.
func (c *Coordinator) History() []BatchRecord {
	return c.hist.snapshot().History
}

// run is the flusher goroutine: the only place flush bodies execute.
func (c *Coordinator) run() {
	defer c.wg.Done()

	var timer *time.Timer
	var timerCh <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerCh = nil
		}
	}

	for {
		select {
		case <-c.notifyCh:
			if c.wantImmediate.Swap(false) {
				stopTimer()
				c.flushLogged()
			} else if timerCh == nil {
				timer = time.NewTimer(c.cfg.Window)
				timerCh = timer.C
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			c.flushLogged()
		case reply := <-c.forceCh:
			stopTimer()
			n, err := c.flush()
			reply <- flushResult{n: n, err: err}
		case <-c.stopCh:
			stopTimer()
			c.flushLogged() // terminal flush; pending events must not be lost
			return
		}
	}
}

// flushLogged is flush for triggers with no caller to report to.
func (c *Coordinator) flushLogged() {
	if _, err := c.flush(); err != nil {
		c.log.Error().Err(err).Msg("flush failed")
	}
}

// flush drains the queue and persists the batch as one note. Runs only on
// the flusher goroutine. Returns the number of events handled; an error
// means the batch went to the dead-letter log instead of the vault.
func (c *Coordinator) flush() (int, error) {
	batch := c.queue.drain()
	telemetry.SetPending(0)
	if len(batch) == 0 {
		return 0, nil
	}

	start := time.Now()
	note := buildNote(batch, start)

	path, err := c.writeWithRetry(note, start)
	now := time.Now()
	c.queue.markFlushed(now)

	if err != nil {
		if errors.Is(err, vault.ErrUnavailable) {
			// Degraded mode: no vault, no note. The batch is consumed so
			// memory stays bounded; counters still advance.
			c.log.Debug().Int("events", len(batch)).Msg("vault unavailable; batch not persisted")
			err = nil
		} else {
			c.dropToDeadLetter(err.Error(), batch)
			telemetry.ObserveFlushError()
			err = fmt.Errorf("syncer: flush %d events: %w", len(batch), err)
		}
	}

	c.hist.record(BatchRecord{
		ID:       uuid.NewString(),
		NotePath: path,
		Events:   len(batch),
		Duration: now.Sub(start),
		At:       now,
	})
	telemetry.ObserveFlush(len(batch), now.Sub(start))
	if path != "" {
		c.log.Info().Int("events", len(batch)).Str("note", path).Msg("batch flushed")
	}

	c.fanOut(batch)
	if c.cfg.OnFlush != nil {
		c.cfg.OnFlush()
	}
	return len(batch), err
}

// writeWithRetry persists the note with exponential backoff. An unavailable
// vault is not retried; transient I/O errors are.
func (c *Coordinator) writeWithRetry(note *vault.Note, ts time.Time) (string, error) {
	var path string
	backoff := retry.WithMaxRetries(flushRetryMax, retry.NewExponential(flushRetryBase))
	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		p, err := c.vault.Write(ctx, ts, note)
		if err != nil {
			if errors.Is(err, vault.ErrUnavailable) {
				return err
			}
			c.log.Warn().Err(err).Msg("note write failed; will retry")
			return retry.RetryableError(err)
		}
		path = p
		return nil
	})
	return path, err
}

// deadLetterEntry is one dropped batch in the dead-letter JSONL.
type deadLetterEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
	Events []Event   `json:"events"`
}

func (c *Coordinator) dropToDeadLetter(reason string, events []Event) {
	c.hist.countDeadLetter(len(events))
	telemetry.ObserveDeadLetter(len(events))
	entry := deadLetterEntry{ID: uuid.NewString(), At: time.Now(), Reason: reason, Events: events}
	if err := c.deadLetter.Append(entry); err != nil {
		c.log.Error().Err(err).Int("events", len(events)).Msg("dead-letter append failed; events lost")
		return
	}
	c.log.Warn().Int("events", len(events)).Str("reason", reason).Msg("events dead-lettered")
}

// fanOut publishes derived observations from a flushed batch.
func (c *Coordinator) fanOut(batch []Event) {
	if c.cfg.Sink == nil {
		return
	}
	for _, e := range batch {
		if obs, ok := c.cfg.Mapper(e); ok {
			c.cfg.Sink.RecordObservation(obs)
		}
	}
}

// backupLoop asks the probe for changes every BackupInterval and enqueues a
// periodic_backup event when it reports some. Probe failures are logged and
// swallowed.
func (c *Coordinator) backupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.BackupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			changed, err := c.cfg.Probe(ctx)
			cancel()
			if err != nil {
				c.log.Warn().Err(err).Msg("backup probe failed")
				continue
			}
			if !changed {
				continue
			}
			if err := c.SyncEvent(TypePeriodicBackup, map[string]any{"source": "periodic"}); err != nil {
				return // shutting down
			}
		case <-c.stopCh:
			return
		}
	}
}
