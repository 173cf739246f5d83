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

package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"udo/internal/knowledge/belief"
	"udo/internal/knowledge/search"
	"udo/internal/knowledge/syncer"
	"udo/internal/knowledge/vault"
)

// Test_ResolutionPipeline exercises the full loop across the coordinator,
// vault, and searcher: save a resolution, flush it, find it again by the
// raw error string.
func Test_ResolutionPipeline(t *testing.T) {
	store := vault.New(vault.Config{Root: t.TempDir()}, zerolog.Nop())
	searcher := search.New(store, search.Config{}, nil, zerolog.Nop())
	coord := syncer.NewCoordinator(syncer.Config{
		Window:   time.Hour,
		StateDir: t.TempDir(),
		OnFlush:  searcher.Invalidate,
	}, store, zerolog.Nop())
	if err := coord.Start(); err != nil {
		t.Fatal(err)
	}
	defer coord.Stop()

	errStr := "ConnectionRefusedError: could not reach postgres on port 5432"
	err := coord.SyncEvent(syncer.TypeErrorResolution, map[string]any{
		"error":    errStr,
		"solution": "docker compose up -d postgres",
		"kind":     search.ErrorKind(errStr),
	})
	if err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	if _, err := coord.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	res, err := searcher.Resolve(context.Background(), errStr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res == nil {
		t.Fatal("Resolve missed a resolution flushed moments ago")
	}
	if !strings.Contains(res.Solution, "docker compose up -d postgres") {
		t.Errorf("solution = %q", res.Solution)
	}

	// The same note must rank for a plain-text search too.
	results, err := searcher.Search(context.Background(), "postgres 5432", "", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("search found nothing for the resolution note")
	}
	if results[0].Path != res.NotePath {
		t.Errorf("top result %s, want the resolution note %s", results[0].Path, res.NotePath)
	}
}

// Test_BeliefFanout checks that flushed events reach the belief tracker
// through the coordinator's sink and shift the posteriors.
func Test_BeliefFanout(t *testing.T) {
	store := vault.New(vault.Config{Root: t.TempDir()}, zerolog.Nop())
	tracker := belief.NewTracker(t.TempDir(), "integration", zerolog.Nop())
	coord := syncer.NewCoordinator(syncer.Config{
		Window:   time.Hour,
		StateDir: t.TempDir(),
		Sink:     tracker,
	}, store, zerolog.Nop())
	if err := coord.Start(); err != nil {
		t.Fatal(err)
	}
	defer coord.Stop()

	for i := 0; i < 4; i++ {
		err := coord.SyncEvent(syncer.TypeTaskCompletion, map[string]any{
			"task":     "ship search tier 2",
			"phase":    "implementation",
			"success":  true,
			"observed": map[string]any{"technical": 0.3, "timeline": 0.4},
		})
		if err != nil {
			t.Fatalf("SyncEvent: %v", err)
		}
		if _, err := coord.ForceFlush(context.Background()); err != nil {
			t.Fatalf("ForceFlush: %v", err)
		}
	}

	if n := tracker.Observations("implementation", "technical"); n != 4 {
		t.Errorf("technical observations = %d, want 4", n)
	}
	if n := tracker.Observations("implementation", "market"); n != 0 {
		t.Errorf("market observations = %d, want 0 (not in the observed payload)", n)
	}
}
