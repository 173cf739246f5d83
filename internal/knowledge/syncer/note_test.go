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

package syncer

import (
	"strings"
	"testing"
	"time"
)

func TestBatchTitle(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  string
	}{
		{"Single", []string{"phase_transition"}, "phase_transition"},
		{"SharedType", []string{"git_commit", "git_commit", "git_commit"}, "git_commit"},
		{"Mixed", []string{"e1", "e2", "e3"}, "3 events"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			batch := make([]Event, len(tc.types))
			for i, typ := range tc.types {
				batch[i] = newEvent(typ, nil)
			}
			if got := batchTitle(batch); got != tc.want {
				t.Errorf("batchTitle = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildNote_ErrorResolution(t *testing.T) {
	e := newEvent(TypeErrorResolution, map[string]any{
		"error":    "ModuleNotFoundError: No module named 'pandas'",
		"solution": "pip install pandas",
		"context":  "data pipeline setup",
		"kind":     "ModuleNotFoundError",
	})
	at := time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
	note := buildNote([]Event{e}, at)

	if !strings.HasPrefix(note.Title, "Debug ModuleNotFound ") {
		t.Errorf("title = %q, want Debug-<normalized kind> prefix", note.Title)
	}
	if v, ok := note.Front.Get("error_type"); !ok || v.Str() != "ModuleNotFoundError" {
		t.Errorf("error_type = %v", v.Str())
	}
	if v, ok := note.Front.Get("error_category"); !ok || v.Str() != "modulenotfound" {
		t.Errorf("error_category = %v", v.Str())
	}

	tagv, ok := note.Front.Get("tags")
	if !ok {
		t.Fatal("tags missing")
	}
	tags := strings.Join(tagv.Items(), " ")
	if !strings.Contains(tags, "modulenotfounderror") || !strings.Contains(tags, "pandas") {
		t.Errorf("tags = %q, want kind and message keywords", tags)
	}

	// A lone resolution renders its sections at the top level.
	for _, section := range []string{"## Error", "## Solution", "## Context", "pip install pandas"} {
		if !strings.Contains(note.Body, section) {
			t.Errorf("body missing %q:\n%s", section, note.Body)
		}
	}
	if strings.Contains(note.Body, "### ") {
		t.Errorf("lone resolution nested its sections:\n%s", note.Body)
	}
}

// A resolution that shares a window with other events must still produce a
// note findable by error type: frontmatter and tags come from the
// resolution even though the note keeps the generic batch title.
func TestBuildNote_MixedBatchKeepsResolutionFrontmatter(t *testing.T) {
	batch := []Event{
		newEvent(TypeTaskCompletion, map[string]any{"task": "wire pipeline"}),
		newEvent(TypeErrorResolution, map[string]any{
			"error":    "ModuleNotFoundError: No module named 'pandas'",
			"solution": "pip install pandas",
			"kind":     "ModuleNotFoundError",
		}),
	}
	note := buildNote(batch, time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local))

	if note.Title != "2 events" {
		t.Errorf("title = %q, want generic batch title", note.Title)
	}
	if v, ok := note.Front.Get("error_type"); !ok || v.Str() != "ModuleNotFoundError" {
		t.Errorf("error_type = %v, want the resolution's kind", v.Str())
	}
	if v, ok := note.Front.Get("error_category"); !ok || v.Str() != "modulenotfound" {
		t.Errorf("error_category = %v", v.Str())
	}
	tagv, ok := note.Front.Get("tags")
	if !ok {
		t.Fatal("tags missing")
	}
	tags := strings.Join(tagv.Items(), " ")
	if !strings.Contains(tags, "modulenotfounderror") || !strings.Contains(tags, "pandas") {
		t.Errorf("tags = %q, want resolution lookup tags", tags)
	}

	// Inside a batch the resolution nests under its event section.
	for _, section := range []string{"## Event 1: task_completion", "## Event 2: error_resolution", "### Solution"} {
		if !strings.Contains(note.Body, section) {
			t.Errorf("body missing %q:\n%s", section, note.Body)
		}
	}
}

func TestBuildNote_Frontmatter(t *testing.T) {
	at := time.Date(2026, 8, 25, 16, 45, 30, 0, time.Local)
	note := buildNote([]Event{newEvent("e1", nil), newEvent("e2", nil)}, at)

	if v, _ := note.Front.Get("date"); v.Str() != "2026-08-25" {
		t.Errorf("date = %q", v.Str())
	}
	if v, _ := note.Front.Get("time"); v.Str() != "16:45:30" {
		t.Errorf("time = %q", v.Str())
	}
	if v, _ := note.Front.Get("event_type"); v.Str() != "batch_sync" {
		t.Errorf("event_type = %q", v.Str())
	}
	if v, _ := note.Front.Get("events_count"); v.Int64() != 2 {
		t.Errorf("events_count = %d", v.Int64())
	}
}

func TestNormalizeKind(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ModuleNotFoundError", "ModuleNotFound"},
		{"timeout error", "timeout"},
		{"Error", "Error"}, // stripping would leave nothing
		{"HTTP-404", "HTTP-404"},
	}
	for _, tc := range tests {
		if got := normalizeKind(tc.in); got != tc.want {
			t.Errorf("normalizeKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
