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

// Package vault persists notes into a date-partitioned markdown hierarchy.
// This file derives filesystem-safe slugs from note titles.
package vault

import (
	"strings"
	"unicode"
)

// maxSlugRunes caps the sanitized title length. Truncation counts runes,
// never bytes: a multi-byte codepoint must not be split in half.
const maxSlugRunes = 80

// reservedRunes are the only characters stripped from titles. Everything
// else — Korean, CJK, accents, emoji — passes through verbatim. This list is
// the cross-platform filesystem-reserved set; stripping more than this has
// historically mangled non-ASCII titles.
const reservedRunes = `<>:"/\|?*`

// SanitizeTitle turns an arbitrary title into a filename slug: reserved and
// control characters are removed, whitespace runs collapse to single
// dashes, and the result is truncated to maxSlugRunes runes. An empty
// result falls back to "note".
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		// Tabs and newlines are control characters but also whitespace;
		// they must survive this pass so the field split below collapses
		// them to dashes instead of deleting them.
		if unicode.IsSpace(r) {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f || strings.ContainsRune(reservedRunes, r) {
			continue
		}
		b.WriteRune(r)
	}

	fields := strings.Fields(b.String())
	slug := strings.Join(fields, "-")

	if runes := []rune(slug); len(runes) > maxSlugRunes {
		slug = string(runes[:maxSlugRunes])
	}
	if slug == "" {
		return "note"
	}
	return slug
}
