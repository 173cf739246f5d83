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

// Package search is the three-tier retrieval pipeline over the vault.
// This file is the past-solution cache: given a raw error string, find the
// note that resolved it before and hand back its solution block. Only the
// filename and frontmatter tiers run here; scanning every note body for an
// error that has probably never been seen would blow the latency budget.
package search

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"udo/internal/knowledge/telemetry"
	"udo/internal/knowledge/vault"
)

var (
	httpCodeRe = regexp.MustCompile(`^\d{3}$`)

	// solutionHeadRe finds the solution section in a resolution note. Both
	// heading depths appear: ## when the solution is a top-level section,
	// ### when it sits inside an event section of a batch note.
	solutionHeadRe = regexp.MustCompile(`(?m)^#{2,3} Solution\s*$`)
	anyHeadRe      = regexp.MustCompile(`(?m)^#{2,3} `)
)

// ErrorKind extracts the kind tag from a raw error string: the word before
// the first colon when one exists, otherwise the first whitespace token.
// Bare HTTP status codes become HTTP-<code>.
func ErrorKind(errStr string) string {
	errStr = strings.TrimSpace(errStr)
	if errStr == "" {
		return ""
	}

	var kind string
	if head, _, ok := strings.Cut(errStr, ":"); ok {
		kind = strings.TrimSpace(head)
	}
	if kind == "" {
		kind = strings.Fields(errStr)[0]
	}
	// A multi-word prefix ("connection refused: ...") keys on its last word.
	if fields := strings.Fields(kind); len(fields) > 1 {
		kind = fields[len(fields)-1]
	}
	if httpCodeRe.MatchString(kind) {
		return "HTTP-" + kind
	}
	return kind
}

// Resolution is a past-solution cache hit.
type Resolution struct {
	Solution string        `json:"solution"`
	NotePath string        `json:"note_path"`
	Latency  time.Duration `json:"-"`
}

// Resolve looks up a past solution for the error. It returns (nil, nil)
// when nothing scores above MinScore — an unknown error is the common case
// and not a failure.
func (s *Searcher) Resolve(ctx context.Context, errStr string) (*Resolution, error) {
	start := time.Now()
	kind := ErrorKind(errStr)
	if kind == "" {
		telemetry.ObserveResolution("miss")
		return nil, nil
	}

	// The kind joins the message keywords so the Debug-<kind>-* filename
	// tier can fire even for terse errors.
	_, message, _ := strings.Cut(errStr, ":")
	query := kind + " " + message

	results, err := s.search(ctx, query, kind, 3, false)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		telemetry.ObserveResolution("miss")
		return nil, nil
	}

	top := results[0]
	doc, err := s.load(infoForPath(top.Path))
	if err != nil {
		telemetry.ObserveResolution("miss")
		return nil, nil
	}
	solution := ExtractSolution(doc.body)
	if solution == "" {
		telemetry.ObserveResolution("miss")
		return nil, nil
	}
	telemetry.ObserveResolution("hit")
	return &Resolution{Solution: solution, NotePath: top.Path, Latency: time.Since(start)}, nil
}

// infoForPath builds the minimal Info the document loader needs for a note
// already identified by a search result.
func infoForPath(path string) vault.Info {
	return vault.Info{Path: path, Name: filepath.Base(path)}
}

// ExtractSolution returns the text of the first Solution section, up to the
// next heading. Empty when the note has none.
func ExtractSolution(body string) string {
	loc := solutionHeadRe.FindStringIndex(body)
	if loc == nil {
		return ""
	}
	rest := body[loc[1]:]
	if next := anyHeadRe.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return strings.TrimSpace(rest)
}
