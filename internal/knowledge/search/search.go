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
// This file implements the pipeline itself. Tier 1 touches only filenames,
// tier 2 parsed frontmatter, tier 3 note bodies; parsed notes are served
// from a byte-bounded LRU keyed by (generation, path) so a flush can
// invalidate everything by bumping the generation.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"udo/internal/knowledge/telemetry"
	"udo/internal/knowledge/vault"
	"udo/pkg/cache"
)

// Tier weights and the final-formula coefficients. Per-match weights
// accumulate into the tier scores, and the relevance formula weighs the
// tiers again; tier-1 dominance is intentional.
const (
	tier1MatchWeight = 10.0
	tier2MatchWeight = 5.0
	tier3BaseWeight  = 1.0
	tier3CountFactor = 0.1

	relTier1Coeff      = 10.0
	relTier2Coeff      = 5.0
	relTier3Coeff      = 1.0
	relFreshnessCoeff  = 2.0
	relUsefulnessCoeff = 3.0
)

// Freshness bonus schedule by note age.
const (
	freshWeekBonus    = 5.0
	freshMonthBonus   = 3.0
	freshQuarterBonus = 1.0
)

// snippetLen caps the context captured around a tier-3 match.
const snippetLen = 200

// Defaults for the query surface.
const (
	DefaultMaxResults = 10
	DefaultMinScore   = 1.0
)

// Result is one ranked document.
type Result struct {
	DocumentID     string  `json:"document_id"`
	Path           string  `json:"document_path"`
	Tier1Score     float64 `json:"tier1_score"`
	Tier2Score     float64 `json:"tier2_score"`
	Tier3Score     float64 `json:"tier3_score"`
	FreshnessBonus float64 `json:"freshness_bonus"`
	Usefulness     float64 `json:"usefulness_score"`
	Relevance      float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet,omitempty"`
}

// document is a parsed note held in the LRU.
type document struct {
	info vault.Info
	meta vault.Meta
	body string
}

func docSize(d *document) int {
	// Shallow accounting: body dominates; meta entries get a flat charge.
	return len(d.body) + len(d.info.Path) + 64*len(d.meta)
}

// Config configures a Searcher.
type Config struct {
	// MinScore filters results below this relevance. Defaults to 1.0.
	MinScore float64

	// CacheBytes bounds the parsed-note LRU. Defaults to
	// cache.DefaultMaxBytes.
	CacheBytes int64
}

// Searcher executes queries against the vault. Safe for concurrent use;
// identical in-flight queries are collapsed through singleflight.
type Searcher struct {
	store      *vault.Store
	cfg        Config
	docs       *cache.Cache[string, *document]
	usefulness Source
	log        zerolog.Logger
	sf         singleflight.Group
	generation atomic.Uint64
}

// New builds a Searcher over the store. usefulness may be nil, which scores
// every document 0.
func New(store *vault.Store, cfg Config, usefulness Source, log zerolog.Logger) *Searcher {
	if cfg.MinScore == 0 {
		cfg.MinScore = DefaultMinScore
	}
	if usefulness == nil {
		usefulness = StaticSource{}
	}
	return &Searcher{
		store:      store,
		cfg:        cfg,
		docs:       cache.New[string, *document](cfg.CacheBytes, docSize),
		usefulness: usefulness,
		log:        log.With().Str("component", "search").Logger(),
	}
}

// Invalidate makes every cached parse stale. The coordinator calls this
// after each flush so post-flush queries see the new notes.
func (s *Searcher) Invalidate() {
	s.generation.Add(1)
}

// CacheStats exposes the parsed-note LRU counters.
func (s *Searcher) CacheStats() cache.Stats {
	return s.docs.Stats()
}

// Search runs the full pipeline and returns up to maxResults documents with
// relevance ≥ MinScore, best first. errorType, when non-empty, constrains
// the frontmatter tier. Read failures degrade to empty results.
func (s *Searcher) Search(ctx context.Context, query, errorType string, maxResults int) ([]Result, error) {
	return s.search(ctx, query, errorType, maxResults, true)
}

// search is the shared pipeline; withContent=false skips tier 3, which is
// what the error-resolution path uses to stay inside its latency budget.
func (s *Searcher) search(ctx context.Context, query, errorType string, maxResults int, withContent bool) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	key := fmt.Sprintf("%s\x00%s\x00%d\x00%t", query, errorType, maxResults, withContent)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.run(ctx, query, errorType, maxResults, withContent)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Result), nil
}

func (s *Searcher) run(ctx context.Context, query, errorType string, maxResults int, withContent bool) ([]Result, error) {
	telemetry.ObserveSearch()
	keywords := Keywords(query)
	if len(keywords) == 0 && errorType == "" {
		return nil, nil
	}

	infos, err := s.store.List(0)
	if err != nil {
		s.log.Warn().Err(err).Msg("corpus listing failed; returning no results")
		return nil, nil
	}
	if len(infos) == 0 {
		return nil, nil
	}

	byPath := make(map[string]*Result)
	resultFor := func(info vault.Info) *Result {
		r, ok := byPath[info.Path]
		if !ok {
			r = &Result{
				DocumentID:     strings.TrimSuffix(info.Name, ".md"),
				Path:           info.Path,
				FreshnessBonus: freshnessBonus(info.Date),
			}
			byPath[info.Path] = r
		}
		return r
	}

	// Tier 1: filename match. No file is opened here.
	start := time.Now()
	for _, info := range infos {
		if score := tier1Score(info.Name, keywords); score > 0 {
			resultFor(info).Tier1Score = score
		}
	}
	telemetry.ObserveSearchTier("filename", time.Since(start))

	// Tier 2: frontmatter predicates.
	start = time.Now()
	for _, info := range infos {
		doc, err := s.load(info)
		if err != nil {
			continue
		}
		if score := tier2Score(doc.meta, keywords, errorType); score > 0 {
			resultFor(info).Tier2Score = score
		}
	}
	telemetry.ObserveSearchTier("frontmatter", time.Since(start))

	// Tier 3: body substring match.
	if withContent {
		start = time.Now()
		for _, info := range infos {
			doc, err := s.load(info)
			if err != nil {
				continue
			}
			score, snippet := tier3Score(doc.body, keywords)
			if score > 0 {
				r := resultFor(info)
				r.Tier3Score = score
				r.Snippet = snippet
			}
		}
		telemetry.ObserveSearchTier("content", time.Since(start))
	}

	results := make([]Result, 0, len(byPath))
	for _, r := range byPath {
		r.Usefulness = s.usefulness.Score(ctx, r.DocumentID)
		r.Relevance = relTier1Coeff*r.Tier1Score +
			relTier2Coeff*r.Tier2Score +
			relTier3Coeff*r.Tier3Score +
			relFreshnessCoeff*r.FreshnessBonus +
			relUsefulnessCoeff*r.Usefulness
		if r.Relevance >= s.cfg.MinScore {
			results = append(results, *r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Path < results[j].Path
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// load fetches a parsed note through the LRU. The generation in the key
// makes stale parses unreachable after Invalidate; they age out of the
// cache by eviction.
func (s *Searcher) load(info vault.Info) (*document, error) {
	key := fmt.Sprintf("%d|%s", s.generation.Load(), info.Path)
	if doc, ok := s.docs.Get(key); ok {
		telemetry.ObserveDocCache(true)
		return doc, nil
	}
	telemetry.ObserveDocCache(false)
	meta, body, err := s.store.Read(info.Path)
	if err != nil {
		return nil, err
	}
	doc := &document{info: info, meta: meta, body: body}
	if err := s.docs.Set(key, doc); err != nil {
		// Oversized note: serve it uncached.
		s.log.Debug().Str("path", info.Path).Msg("note larger than cache budget")
	}
	return doc, nil
}

// tier1Score matches normalized keywords against Debug-<keyword>-* note
// filenames, case-insensitively. The trailing boundary is part of the
// pattern: the keyword must make up the whole slug word, so a strict prefix
// like "modul" against Debug-ModuleNotFound-* does not fire.
func tier1Score(name string, keywords []string) float64 {
	lower := strings.ToLower(name)
	score := 0.0
	for _, kw := range dedup(keywords) {
		n := normalizeKeyword(kw)
		if n == "" {
			continue
		}
		// The slug word ends at the next dash, or at the extension when
		// the keyword is the last word of the title.
		if strings.Contains(lower, "debug-"+n+"-") || strings.Contains(lower, "debug-"+n+".") {
			score += tier1MatchWeight
		}
	}
	return score
}

// tier2Score evaluates the frontmatter predicates: a required error_type
// equality when the hint is present, then keyword membership in tags or
// equality with error_category, OR-combined.
func tier2Score(meta vault.Meta, keywords []string, errorType string) float64 {
	score := 0.0
	if errorType != "" {
		noteType, ok := meta.Str("error_type")
		if !ok || !strings.EqualFold(noteType, errorType) {
			return 0
		}
		score += tier2MatchWeight
	}

	tags := make(map[string]struct{})
	for _, t := range meta.List("tags") {
		tags[strings.ToLower(t)] = struct{}{}
	}
	category, _ := meta.Str("error_category")
	category = strings.ToLower(category)

	for _, kw := range dedup(keywords) {
		if _, ok := tags[kw]; ok {
			score += tier2MatchWeight
			continue
		}
		if category != "" && kw == category {
			score += tier2MatchWeight
		}
	}
	return score
}

// tier3Score counts keyword occurrences in the body. Each matching keyword
// contributes the base weight scaled by how often it appears; the snippet
// captures context around the first match.
func tier3Score(body string, keywords []string) (float64, string) {
	lower := strings.ToLower(body)
	score := 0.0
	snippet := ""
	for _, kw := range dedup(keywords) {
		n := strings.Count(lower, kw)
		if n == 0 {
			continue
		}
		score += tier3BaseWeight * (1 + tier3CountFactor*float64(n))
		if snippet == "" {
			snippet = extractSnippet(body, strings.Index(lower, kw))
		}
	}
	return score, snippet
}

func extractSnippet(body string, at int) string {
	if at < 0 {
		return ""
	}
	start := at - snippetLen/2
	if start < 0 {
		start = 0
	}
	end := start + snippetLen
	if end > len(body) {
		end = len(body)
	}
	// Snap to rune boundaries so multi-byte text is never cut mid-codepoint.
	for start > 0 && body[start]&0xC0 == 0x80 {
		start--
	}
	for end < len(body) && body[end]&0xC0 == 0x80 {
		end++
	}
	return strings.TrimSpace(body[start:end])
}

// freshnessBonus implements the age schedule: under a week 5, under a month
// 3, under a quarter 1, else 0.
func freshnessBonus(date time.Time) float64 {
	days := int(time.Since(date).Hours() / 24)
	switch {
	case days < 7:
		return freshWeekBonus
	case days < 30:
		return freshMonthBonus
	case days < 90:
		return freshQuarterBonus
	default:
		return 0
	}
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
