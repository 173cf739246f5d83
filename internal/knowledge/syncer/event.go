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
// This file models the event record and its note-body rendering.
package syncer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recognized event types. Anything else is handled as an opaque payload and
// rendered as a generic key-value block.
const (
	TypePhaseTransition = "phase_transition"
	TypeTaskCompletion  = "task_completion"
	TypeErrorResolution = "error_resolution"
	TypeGitCommit       = "git_commit"
	TypePeriodicBackup  = "periodic_backup"
)

// Event is one immutable development-activity record. Created when a
// producer calls SyncEvent, consumed exactly once at flush.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"event_type"`
	Data       map[string]any `json:"data"`
	EnqueuedAt time.Time      `json:"enqueued_at"` // carries the monotonic clock reading
	IngestedAt time.Time      `json:"ingested_at"` // wall clock, for display
}

func newEvent(eventType string, data map[string]any) Event {
	now := time.Now()
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Data:       data,
		EnqueuedAt: now,
		IngestedAt: now.Round(0), // strip the monotonic reading for the wall-clock field
	}
}

// str fetches a string field from the payload, "" when absent or non-string.
func (e Event) str(key string) string {
	if v, ok := e.Data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// renderBody appends this event's note-body section. The section heading
// carries the 1-based position so readers (and tests) can verify enqueue
// order; recognized types get a purpose-built layout, the rest a sorted
// key-value block.
func (e Event) renderBody(sb *strings.Builder, pos int) {
	fmt.Fprintf(sb, "## Event %d: %s\n\n", pos, e.Type)
	fmt.Fprintf(sb, "- time: %s\n", e.IngestedAt.Format("15:04:05"))

	switch e.Type {
	case TypePhaseTransition:
		fmt.Fprintf(sb, "- transition: %s → %s\n", orDash(e.str("from")), orDash(e.str("to")))
		e.renderRest(sb, "from", "to")
	case TypeTaskCompletion:
		fmt.Fprintf(sb, "- task: %s\n", orDash(e.str("task")))
		if s := e.str("phase"); s != "" {
			fmt.Fprintf(sb, "- phase: %s\n", s)
		}
		e.renderRest(sb, "task", "phase")
	case TypeGitCommit:
		fmt.Fprintf(sb, "- commit: %s\n", orDash(e.str("hash")))
		fmt.Fprintf(sb, "- message: %s\n", orDash(e.str("message")))
		e.renderRest(sb, "hash", "message")
	case TypeErrorResolution:
		sb.WriteString("\n")
		e.renderResolution(sb, "###")
	default:
		e.renderRest(sb)
	}
	sb.WriteString("\n")
}

// renderResolution emits the Error/Solution/Context sections at the given
// heading level: ## when the resolution is the whole note, ### when it sits
// inside an event section of a mixed batch.
func (e Event) renderResolution(sb *strings.Builder, level string) {
	fmt.Fprintf(sb, "%s Error\n\n%s\n\n", level, orDash(e.str("error")))
	fmt.Fprintf(sb, "%s Solution\n\n%s\n", level, orDash(e.str("solution")))
	if ctxt := e.str("context"); ctxt != "" {
		fmt.Fprintf(sb, "\n%s Context\n\n%s\n", level, ctxt)
	}
}

// renderRest emits the payload fields not already shown, sorted by key so
// note bodies are stable across runs.
func (e Event) renderRest(sb *strings.Builder, shown ...string) {
	keys := make([]string, 0, len(e.Data))
outer:
	for k := range e.Data {
		for _, s := range shown {
			if k == s {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %v\n", k, e.Data[k])
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
