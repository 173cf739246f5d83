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

// Package udo is the knowledge-sync core: it ingests development events,
// coalesces them under a debounce window into vault notes, serves three-tier
// retrieval and past-solution lookups over those notes, and refines
// per-phase uncertainty beliefs from the same event stream.
//
// Core is the single context owning every component. Construct it with New,
// call Start, produce events through SyncEvent, and Stop to flush and
// persist state. There are no package-level singletons.
package udo

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"udo/internal/knowledge/belief"
	"udo/internal/knowledge/search"
	"udo/internal/knowledge/storage"
	"udo/internal/knowledge/syncer"
	"udo/internal/knowledge/telemetry"
	"udo/internal/knowledge/vault"
	"udo/pkg/breaker"
)

// Bounds on the recent-notes listing window.
const (
	recentDaysMin = 1
	recentDaysMax = 30
)

// Config configures a Core. The zero value is usable: vault root from the
// environment, state dir from UDO_STORAGE_DIR/UDO_HOME, defaults everywhere
// else.
type Config struct {
	// VaultRoot overrides the OBSIDIAN_VAULT_PATH environment variable.
	VaultRoot string

	// DailyDir is the per-date directory under the vault root.
	DailyDir string

	// Project names the belief-tracker state file.
	Project string

	// Window is the event debounce interval.
	Window time.Duration

	// MaxPending caps the pending-event queue.
	MaxPending int

	// BackupInterval and Probe drive the periodic-backup loop; a nil
	// Probe disables it.
	BackupInterval time.Duration
	Probe          syncer.Probe

	// RedisAddr selects the Redis usefulness provider; empty uses the
	// in-process feedback aggregator.
	RedisAddr string

	// MetricsAddr exposes Prometheus /metrics on its own listener when
	// non-empty.
	MetricsAddr string

	// SearchMinScore filters search results; see search.DefaultMinScore.
	SearchMinScore float64
}

// Core owns the knowledge subsystem: vault store, sync coordinator,
// searcher, belief tracker, and the breaker guarding fragile downstream
// lookups.
type Core struct {
	cfg      Config
	log      zerolog.Logger
	stateDir string

	vault    *vault.Store
	coord    *syncer.Coordinator
	searcher *search.Searcher
	tracker  *belief.Tracker
	feedback *search.MemorySource // nil when Redis supplies usefulness
	breaker  *breaker.Breaker
	coverage *storage.JSONLog
}

// New wires a Core. The vault may be absent; the core still constructs and
// degrades writes to no-ops (Statistics reports VaultAvailable false).
func New(cfg Config, log zerolog.Logger) (*Core, error) {
	stateDir, err := storage.Dir()
	if err != nil {
		return nil, fmt.Errorf("udo: resolve state dir: %w", err)
	}

	store := vault.New(vault.Config{Root: cfg.VaultRoot, DailyDir: cfg.DailyDir}, log)
	br := breaker.New(breaker.Config{})
	usefulness, feedback := search.BuildSource(cfg.RedisAddr, br, log)
	searcher := search.New(store, search.Config{MinScore: cfg.SearchMinScore}, usefulness, log)
	tracker := belief.NewTracker(stateDir, cfg.Project, log)

	coord := syncer.NewCoordinator(syncer.Config{
		Window:         cfg.Window,
		MaxPending:     cfg.MaxPending,
		StateDir:       stateDir,
		BackupInterval: cfg.BackupInterval,
		Probe:          cfg.Probe,
		Sink:           tracker,
		OnFlush:        searcher.Invalidate,
	}, store, log)

	telemetry.Serve(cfg.MetricsAddr)

	return &Core{
		cfg:      cfg,
		log:      log.With().Str("component", "core").Logger(),
		stateDir: stateDir,
		vault:    store,
		coord:    coord,
		searcher: searcher,
		tracker:  tracker,
		feedback: feedback,
		breaker:  br,
		coverage: storage.CoverageTrendLog(stateDir),
	}, nil
}

// Start launches the coordinator's background work.
func (c *Core) Start() error {
	return c.coord.Start()
}

// Stop flushes pending events and persists coordinator and belief state.
func (c *Core) Stop() error {
	if err := c.coord.Stop(); err != nil {
		return err
	}
	if err := c.tracker.Save(); err != nil {
		return err
	}
	c.log.Info().Msg("core stopped")
	return nil
}

// SyncEvent enqueues one event. Fire-and-forget: persistence failures never
// reach the producer.
func (c *Core) SyncEvent(eventType string, data map[string]any) error {
	return c.coord.SyncEvent(eventType, data)
}

// ForceFlush persists everything pending and returns the count flushed.
func (c *Core) ForceFlush(ctx context.Context) (int, error) {
	return c.coord.ForceFlush(ctx)
}

// SearchKnowledge runs the three-tier pipeline.
func (c *Core) SearchKnowledge(ctx context.Context, query string, maxResults int, errorType string) ([]search.Result, error) {
	return c.searcher.Search(ctx, query, errorType, maxResults)
}

// ResolveErrorTier1 looks up a past solution for a raw error string. A nil
// Resolution is a cache miss, not a failure.
func (c *Core) ResolveErrorTier1(ctx context.Context, errStr string) (*search.Resolution, error) {
	return c.searcher.Resolve(ctx, errStr)
}

// SaveErrorResolution records a solved error so future tier-1 lookups find
// it. The note lands on the next flush.
func (c *Core) SaveErrorResolution(errStr, solution string, contextData map[string]any) error {
	data := map[string]any{
		"error":    errStr,
		"solution": solution,
		"kind":     search.ErrorKind(errStr),
	}
	if len(contextData) > 0 {
		raw, err := json.Marshal(contextData)
		if err != nil {
			return fmt.Errorf("udo: encode resolution context: %w", err)
		}
		data["context"] = string(raw)
	}
	return c.coord.SyncEvent(syncer.TypeErrorResolution, data)
}

// RecentNotes lists note summaries from the last days days, clamped to
// [1, 30].
func (c *Core) RecentNotes(days int) ([]vault.Info, error) {
	if days < recentDaysMin {
		days = recentDaysMin
	}
	if days > recentDaysMax {
		days = recentDaysMax
	}
	return c.vault.List(days)
}

// Statistics returns the coordinator counters.
func (c *Core) Statistics() syncer.Stats {
	return c.coord.Statistics()
}

// Predict forecasts the uncertainty vector for a phase.
func (c *Core) Predict(phase string, current map[string]float64, horizon int) belief.Prediction {
	return c.tracker.Predict(phase, current, horizon)
}

// UpdateBelief scores a prediction against an observed vector.
func (c *Core) UpdateBelief(phase string, pred belief.Prediction, observed map[string]float64, success bool) {
	c.tracker.Update(phase, pred, observed, success)
}

// BiasProfile returns the bias label for a phase.
func (c *Core) BiasProfile(phase string) string {
	return c.tracker.BiasLabel(phase)
}

// RecordFeedback folds a usefulness signal into the in-process aggregator.
// No-op when Redis supplies usefulness scores.
func (c *Core) RecordFeedback(docID string, fb search.Feedback) {
	if c.feedback != nil {
		c.feedback.Record(docID, fb)
	}
}

// RecordCoverageTrend appends one entry to the coverage trend log. The
// quality collector producing these lives outside the core; this is its
// one hook in.
func (c *Core) RecordCoverageTrend(entry map[string]any) error {
	line := map[string]any{"at": time.Now()}
	for k, v := range entry {
		line[k] = v
	}
	return c.coverage.Append(line)
}
