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

// Package search is the three-tier retrieval pipeline over the vault:
// filename match, frontmatter match, then full-text match, each with its own
// weight and latency budget. This file handles query tokenization.
package search

import "strings"

// minKeywordLen drops tokens too short to discriminate anything.
const minKeywordLen = 3

// edgePunct is trimmed from token boundaries, not interiors: "can't" keeps
// its apostrophe, "(pandas)" loses its parens.
const edgePunct = `.,;:!?"'()[]{}`

// stopWords are discarded outright. The set is deliberately small; search
// quality here comes from the tiers, not from NLP.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "had": {}, "this": {},
	"that": {}, "with": {}, "from": {}, "they": {}, "were": {}, "been": {},
	"their": {}, "there": {}, "which": {}, "would": {}, "could": {},
	"should": {}, "what": {}, "when": {}, "where": {}, "will": {},
	"into": {}, "than": {}, "then": {}, "them": {}, "these": {},
	"some": {}, "such": {}, "only": {}, "over": {}, "also": {},
}

// Keywords tokenizes a query: lowercase, whitespace split, edge punctuation
// trimmed, stop words and short tokens dropped. Order and duplicates are
// preserved; tiers that care deduplicate themselves.
func Keywords(query string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Trim(tok, edgePunct)
		if len(tok) < minKeywordLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// normalizeKeyword strips a trailing "error" so exception-class names like
// ModuleNotFoundError match their Debug-ModuleNotFound-* note filenames.
// Returns "" when the remainder is too short to match anything.
func normalizeKeyword(kw string) string {
	n := strings.TrimSuffix(kw, "error")
	n = strings.TrimSuffix(n, "-")
	if len(n) < minKeywordLen {
		return ""
	}
	return n
}
