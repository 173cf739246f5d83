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

package udo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"udo/internal/knowledge/storage"
	"udo/internal/knowledge/syncer"
)

func newTestCore(t *testing.T, cfg Config) *Core {
	t.Helper()
	t.Setenv(storage.EnvStorageDir, t.TempDir())
	if cfg.VaultRoot == "" {
		cfg.VaultRoot = t.TempDir()
	}
	if cfg.Window == 0 {
		cfg.Window = 200 * time.Millisecond
	}
	core, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := core.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = core.Stop() })
	return core
}

func TestSingleEventPersistsWithinWindow(t *testing.T) {
	core := newTestCore(t, Config{})

	if err := core.SyncEvent("phase_transition", map[string]any{"from": "design", "to": "mvp"}); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		notes, err := core.RecentNotes(1)
		if err != nil {
			t.Fatalf("RecentNotes: %v", err)
		}
		if len(notes) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notes = %d, want exactly 1", len(notes))
		}
		time.Sleep(20 * time.Millisecond)
	}

	notes, _ := core.RecentNotes(1)
	meta, _, err := core.vault.Read(notes[0].Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n, _ := meta.Int("events_count"); n != 1 {
		t.Errorf("events_count = %d, want 1", n)
	}
}

func TestResolutionRoundTrip(t *testing.T) {
	core := newTestCore(t, Config{Window: time.Hour})

	err := core.SaveErrorResolution(
		"ModuleNotFoundError: No module named 'pandas'",
		"pip install pandas",
		map[string]any{"venv": "data-pipeline"},
	)
	if err != nil {
		t.Fatalf("SaveErrorResolution: %v", err)
	}
	if _, err := core.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	res, err := core.ResolveErrorTier1(context.Background(), "ModuleNotFoundError: No module named 'pandas'")
	if err != nil {
		t.Fatalf("ResolveErrorTier1: %v", err)
	}
	if res == nil {
		t.Fatal("ResolveErrorTier1 = nil, want the saved solution")
	}
	if !strings.Contains(res.Solution, "pip install pandas") {
		t.Errorf("solution = %q", res.Solution)
	}
	if res.Latency <= 0 {
		t.Errorf("latency = %v, want > 0", res.Latency)
	}
}

// A resolution saved while other events share the debounce window lands in
// a mixed batch note; it must still be findable afterwards.
func TestResolutionInMixedBatchStillResolves(t *testing.T) {
	core := newTestCore(t, Config{Window: time.Hour})

	if err := core.SyncEvent("task_completion", map[string]any{"task": "wire pipeline"}); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	err := core.SaveErrorResolution(
		"ModuleNotFoundError: No module named 'pandas'",
		"pip install pandas",
		nil,
	)
	if err != nil {
		t.Fatalf("SaveErrorResolution: %v", err)
	}
	if _, err := core.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	res, err := core.ResolveErrorTier1(context.Background(), "ModuleNotFoundError: No module named 'pandas'")
	if err != nil {
		t.Fatalf("ResolveErrorTier1: %v", err)
	}
	if res == nil {
		t.Fatal("ResolveErrorTier1 = nil, want the solution saved in a mixed batch")
	}
	if !strings.Contains(res.Solution, "pip install pandas") {
		t.Errorf("solution = %q", res.Solution)
	}
}

func TestSearchFindsFlushedEvents(t *testing.T) {
	core := newTestCore(t, Config{Window: time.Hour})

	if err := core.SyncEvent("git_commit", map[string]any{"hash": "deadbeef", "message": "refactor vault sanitizer"}); err != nil {
		t.Fatal(err)
	}
	if _, err := core.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}

	results, err := core.SearchKnowledge(context.Background(), "sanitizer refactor", 10, "")
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results for content that was just flushed")
	}
	if results[0].Tier3Score <= 0 {
		t.Errorf("top result = %+v, want a content match", results[0])
	}
}

func TestStatisticsAndFeedbackSurface(t *testing.T) {
	core := newTestCore(t, Config{Window: time.Hour})

	for i := 0; i < 3; i++ {
		if err := core.SyncEvent("task_completion", map[string]any{"task": "t"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := core.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats := core.Statistics()
	if stats.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", stats.TotalEvents)
	}
	if !stats.VaultAvailable {
		t.Error("VaultAvailable = false")
	}

	// Feedback intake must be wired to the in-memory usefulness source.
	core.RecordFeedback("some-doc", 0)
	if core.feedback == nil {
		t.Error("no feedback aggregator despite no Redis configured")
	}

	if err := core.RecordCoverageTrend(map[string]any{"coverage": 81.5}); err != nil {
		t.Errorf("RecordCoverageTrend: %v", err)
	}
}

func TestBeliefSurface(t *testing.T) {
	core := newTestCore(t, Config{Window: time.Hour})

	vector := map[string]float64{
		"technical": 0.5, "market": 0.5, "resource": 0.5, "timeline": 0.5, "quality": 0.5,
	}
	before := core.Predict("design", vector, 1)

	low := map[string]float64{
		"technical": 0.1, "market": 0.1, "resource": 0.1, "timeline": 0.1, "quality": 0.1,
	}
	for i := 0; i < 10; i++ {
		pred := core.Predict("design", vector, 1)
		core.UpdateBelief("design", pred, low, true)
	}

	after := core.Predict("design", vector, 1)
	if after.Magnitude >= before.Magnitude {
		t.Errorf("magnitude did not decrease: %v -> %v", before.Magnitude, after.Magnitude)
	}
	if after.Confidence <= before.Confidence {
		t.Errorf("confidence did not increase: %v -> %v", before.Confidence, after.Confidence)
	}
	if core.BiasProfile("design") == "" {
		t.Error("empty bias profile label")
	}
}

func TestStopThenProducerRejected(t *testing.T) {
	t.Setenv(storage.EnvStorageDir, t.TempDir())
	core, err := New(Config{VaultRoot: t.TempDir(), Window: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := core.Start(); err != nil {
		t.Fatal(err)
	}
	if err := core.SyncEvent("e", nil); err != nil {
		t.Fatal(err)
	}
	if err := core.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := core.SyncEvent("late", nil); err != syncer.ErrShuttingDown {
		t.Errorf("SyncEvent after Stop = %v, want ErrShuttingDown", err)
	}

	// The pre-stop event must have been terminally flushed.
	notes, err := core.RecentNotes(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) == 0 {
		t.Error("terminal flush did not persist the pending event")
	}
}
