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

// Package integration contains integration tests spanning multiple
// knowledge components.
package integration

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"udo/internal/knowledge/syncer"
	"udo/internal/knowledge/vault"
)

func newCoordinator(t *testing.T, window time.Duration) (*syncer.Coordinator, *vault.Store) {
	t.Helper()
	store := vault.New(vault.Config{Root: t.TempDir()}, zerolog.Nop())
	coord := syncer.NewCoordinator(syncer.Config{
		Window:   window,
		StateDir: t.TempDir(),
	}, store, zerolog.Nop())
	if err := coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return coord, store
}

// countEvents sums events_count across every note in the vault.
func countEvents(t *testing.T, store *vault.Store) int64 {
	t.Helper()
	infos, err := store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var total int64
	for _, info := range infos {
		meta, _, err := store.Read(info.Path)
		if err != nil {
			t.Fatalf("Read %s: %v", info.Path, err)
		}
		n, ok := meta.Int("events_count")
		if !ok {
			t.Fatalf("%s has no events_count", info.Name)
		}
		total += n
	}
	return total
}

// Test_WriteReduction_Burst drives a concurrent event burst and checks the
// two sides of the coalescing bargain: no event is lost, and far fewer notes
// than events hit the disk.
func Test_WriteReduction_Burst(t *testing.T) {
	coord, store := newCoordinator(t, 40*time.Millisecond)

	const (
		workers   = 8
		perWorker = 250
		total     = workers * perWorker
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := coord.SyncEvent(syncer.TypeTaskCompletion, map[string]any{
					"task": fmt.Sprintf("w%d-%d", id, i),
				})
				if err != nil {
					t.Errorf("SyncEvent: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// Let the debounce windows run out, then stop for the terminal flush.
	deadline := time.Now().Add(5 * time.Second)
	for coord.Statistics().PendingEvents > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue never drained; pending=%d", coord.Statistics().PendingEvents)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := coord.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	stats := coord.Statistics()
	if stats.TotalEvents != total {
		t.Fatalf("TotalEvents = %d, want %d", stats.TotalEvents, total)
	}
	if persisted := countEvents(t, store); persisted != total {
		t.Fatalf("events on disk = %d, want %d (events lost or duplicated)", persisted, total)
	}

	// Baseline is one note per event; the debounce window must avoid the
	// overwhelming majority of those writes under a burst.
	if stats.BatchingRate < 0.80 {
		t.Fatalf("write reduction too low: got %.1f%% (notes=%d events=%d)",
			stats.BatchingRate*100, stats.TotalSyncs, stats.TotalEvents)
	}
	if stats.DeadLetterEvents != 0 {
		t.Errorf("dead-lettered events = %d, want 0", stats.DeadLetterEvents)
	}
}

// Test_BatchOrder_Preserved checks that note sections come out in enqueue
// order, within one batch and across consecutive batches.
func Test_BatchOrder_Preserved(t *testing.T) {
	coord, store := newCoordinator(t, time.Hour)

	const perBatch = 25
	seq := 0
	for batch := 0; batch < 3; batch++ {
		for i := 0; i < perBatch; i++ {
			err := coord.SyncEvent("ordering_check", map[string]any{"seq": seq})
			if err != nil {
				t.Fatalf("SyncEvent: %v", err)
			}
			seq++
		}
		if _, err := coord.ForceFlush(context.Background()); err != nil {
			t.Fatalf("ForceFlush: %v", err)
		}
		// Distinct write timestamps keep the note filenames sortable.
		time.Sleep(1100 * time.Millisecond)
	}
	if err := coord.Stop(); err != nil {
		t.Fatal(err)
	}

	infos, err := store.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("notes = %d, want 3", len(infos))
	}
	// List returns newest first; replay oldest first.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	seqRe := regexp.MustCompile(`- seq: (\d+)`)
	want := 0
	for _, info := range infos {
		_, body, err := store.Read(info.Path)
		if err != nil {
			t.Fatal(err)
		}
		for _, m := range seqRe.FindAllStringSubmatch(body, -1) {
			got, _ := strconv.Atoi(m[1])
			if got != want {
				t.Fatalf("event order broken in %s: got seq %d, want %d", info.Name, got, want)
			}
			want++
		}
	}
	if want != 3*perBatch {
		t.Fatalf("replayed %d events, want %d", want, 3*perBatch)
	}
}
