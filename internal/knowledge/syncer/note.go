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
// This file turns a drained batch into one vault note.
package syncer

import (
	"fmt"
	"strings"
	"time"

	"udo/internal/knowledge/vault"
)

// titleKeywordMax caps how many message words a resolution title carries.
const titleKeywordMax = 4

// buildNote materializes a batch as a single note. Events render in strict
// enqueue order. Any error_resolution in the batch contributes the error
// frontmatter and lookup tags that future resolution queries key on; a lone
// one additionally gets the Debug-<kind> title and top-level Error/Solution
// sections.
func buildNote(batch []Event, at time.Time) *vault.Note {
	front := vault.NewFrontmatter().
		Set("date", vault.String(at.Format("2006-01-02"))).
		Set("time", vault.String(at.Format("15:04:05"))).
		Set("event_type", vault.String("batch_sync")).
		Set("events_count", vault.Int(int64(len(batch))))

	title := batchTitle(batch)
	tags := batchTags(batch)

	if res, ok := firstResolution(batch); ok {
		kind := res.str("kind")
		front.Set("error_type", vault.String(kind))
		front.Set("error_category", vault.String(strings.ToLower(normalizeKind(kind))))
		for _, e := range batch {
			if e.Type == TypeErrorResolution {
				tags = append(tags, resolutionTags(e)...)
			}
		}
	}
	front.Set("tags", vault.List(dedupe(tags)...))

	var sb strings.Builder
	if res, ok := soleResolution(batch); ok {
		res.renderResolution(&sb, "##")
	} else {
		for i, e := range batch {
			e.renderBody(&sb, i+1)
		}
	}
	return &vault.Note{Title: title, Front: front, Body: sb.String()}
}

// batchTitle picks the note title: the shared type label when every event
// agrees, the event count otherwise, and a searchable Debug title for a
// lone error resolution.
func batchTitle(batch []Event) string {
	if res, ok := soleResolution(batch); ok {
		return debugTitle(res)
	}
	shared := batch[0].Type
	for _, e := range batch[1:] {
		if e.Type != shared {
			return fmt.Sprintf("%d events", len(batch))
		}
	}
	return shared
}

// debugTitle builds "Debug <kind> <lead message words>". The kind keeps its
// original casing; tier-1 matching is case-insensitive anyway.
func debugTitle(e Event) string {
	kind := normalizeKind(e.str("kind"))
	if kind == "" {
		kind = "error"
	}
	parts := []string{"Debug", kind}
	parts = append(parts, messageWords(e.str("error"), titleKeywordMax)...)
	return strings.Join(parts, " ")
}

// soleResolution reports whether the batch is exactly one error_resolution
// event.
func soleResolution(batch []Event) (Event, bool) {
	if len(batch) == 1 && batch[0].Type == TypeErrorResolution {
		return batch[0], true
	}
	return Event{}, false
}

// firstResolution returns the batch's first error_resolution event. When a
// resolution shares a window with other events its frontmatter still comes
// from here, so the note stays findable by error type.
func firstResolution(batch []Event) (Event, bool) {
	for _, e := range batch {
		if e.Type == TypeErrorResolution {
			return e, true
		}
	}
	return Event{}, false
}

// normalizeKind strips a trailing Error suffix, mirroring what the filename
// tier does to query keywords.
func normalizeKind(kind string) string {
	n := strings.TrimSuffix(strings.TrimSuffix(kind, "Error"), "error")
	if n = strings.TrimSpace(n); n != "" {
		return n
	}
	return kind
}

// resolutionTags derives lowercase lookup tags from a resolution event: the
// kind plus the leading message words, which is what the frontmatter tier
// matches query keywords against.
func resolutionTags(e Event) []string {
	var tags []string
	if kind := e.str("kind"); kind != "" {
		tags = append(tags, strings.ToLower(kind), strings.ToLower(normalizeKind(kind)))
	}
	for _, w := range messageWords(e.str("error"), 8) {
		tags = append(tags, strings.ToLower(w))
	}
	return tags
}

// messageWords returns up to max words of an error message, skipping the
// kind prefix (everything through the first colon) and short tokens.
func messageWords(msg string, max int) []string {
	if _, rest, ok := strings.Cut(msg, ":"); ok {
		msg = rest
	}
	var out []string
	for _, w := range strings.Fields(msg) {
		w = strings.Trim(w, `.,;:!?"'()[]{}`)
		if len(w) < 3 {
			continue
		}
		out = append(out, w)
		if len(out) == max {
			break
		}
	}
	return out
}

// batchTags collects the distinct event types.
func batchTags(batch []Event) []string {
	var tags []string
	for _, e := range batch {
		tags = append(tags, e.Type)
	}
	return tags
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
