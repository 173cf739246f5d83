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

package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(Config{Root: t.TempDir()}, zerolog.Nop())
	if !s.Available() {
		t.Fatal("store over a fresh temp dir should be available")
	}
	return s
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"Plain", "error resolution", "error-resolution"},
		{"ReservedStripped", `a<b>c:d"e/f\g|h?i*j`, "abcdefghij"},
		{"WhitespaceRuns", "too   many\t\tspaces", "too-many-spaces"},
		{"NewlinesCollapse", "first\nsecond\r\nthird", "first-second-third"},
		{"ControlChars", "line\x00one\x1ftwo", "lineonetwo"},
		{"Empty", "", "note"},
		{"OnlyReserved", `***???`, "note"},
		{"KoreanPreserved", "개발 단계 전환", "개발-단계-전환"},
		{"MixedKoreanAscii", "Debug 모듈 오류 fix", "Debug-모듈-오류-fix"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeTitle(tc.title); got != tc.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

// Hangul syllables plus ASCII whitespace must come through with every
// codepoint intact and in order. This guards a real regression where an
// over-eager ASCII-only filter destroyed Korean titles.
func TestSanitizeTitle_HangulPreservation(t *testing.T) {
	in := "가나다 라마바사 아자차카 타파하"
	got := SanitizeTitle(in)

	var wantRunes []rune
	for _, r := range in {
		if r >= 0xAC00 && r <= 0xD7A3 {
			wantRunes = append(wantRunes, r)
		}
	}
	gotRunes := []rune(strings.ReplaceAll(got, "-", ""))
	if string(gotRunes) != string(wantRunes) {
		t.Errorf("Hangul codepoints mangled:\n in: %q\ngot: %q", string(wantRunes), string(gotRunes))
	}
}

func TestSanitizeTitle_TruncatesRunesNotBytes(t *testing.T) {
	long := strings.Repeat("하", 200)
	got := SanitizeTitle(long)
	runes := []rune(got)
	if len(runes) != maxSlugRunes {
		t.Fatalf("len = %d runes, want %d", len(runes), maxSlugRunes)
	}
	for i, r := range runes {
		if r != '하' {
			t.Fatalf("rune %d = %q: multi-byte codepoint split by truncation", i, r)
		}
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 8, 25, 14, 30, 5, 0, time.Local)

	front := NewFrontmatter().
		Set("date", String("2026-08-25")).
		Set("time", String("14:30:05")).
		Set("event_type", String("batch_sync")).
		Set("events_count", Int(3)).
		Set("tags", List("sync", "phase"))
	note := &Note{Title: "3 events", Front: front, Body: "## Event 1: phase_transition\n"}

	path, err := s.Write(context.Background(), ts, note)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	wantDir := filepath.Join(s.Root(), "daily", "2026-08-25")
	if filepath.Dir(path) != wantDir {
		t.Errorf("note dir = %s, want %s", filepath.Dir(path), wantDir)
	}
	if base := filepath.Base(path); base != "2026-08-25_143005_3-events.md" {
		t.Errorf("note name = %s", base)
	}

	meta, body, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got, _ := meta.Str("event_type"); got != "batch_sync" {
		t.Errorf("event_type = %q", got)
	}
	if got, _ := meta.Int("events_count"); got != 3 {
		t.Errorf("events_count = %d", got)
	}
	if tags := meta.List("tags"); len(tags) != 2 || tags[0] != "sync" || tags[1] != "phase" {
		t.Errorf("tags = %v", tags)
	}
	if !strings.Contains(body, "# 3 events") || !strings.Contains(body, "## Event 1: phase_transition") {
		t.Errorf("body lost content: %q", body)
	}
}

func TestWrite_CollisionSuffix(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)
	note := &Note{Title: "same title", Front: NewFrontmatter(), Body: "x"}

	p1, err := s.Write(context.Background(), ts, note)
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	p2, err := s.Write(context.Background(), ts, note)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	p3, err := s.Write(context.Background(), ts, note)
	if err != nil {
		t.Fatalf("third Write: %v", err)
	}

	if !strings.HasSuffix(p1, "same-title.md") {
		t.Errorf("p1 = %s", p1)
	}
	if !strings.HasSuffix(p2, "same-title-2.md") {
		t.Errorf("p2 = %s, want -2 suffix", p2)
	}
	if !strings.HasSuffix(p3, "same-title-3.md") {
		t.Errorf("p3 = %s, want -3 suffix", p3)
	}
}

func TestWrite_Unavailable(t *testing.T) {
	s := New(Config{Root: filepath.Join(t.TempDir(), "does-not-exist")}, zerolog.Nop())
	if s.Available() {
		t.Fatal("missing root should leave the store unavailable")
	}
	_, err := s.Write(context.Background(), time.Now(), &Note{Title: "t"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Write = %v, want ErrUnavailable", err)
	}
	infos, err := s.List(7)
	if err != nil || len(infos) != 0 {
		t.Errorf("List on unavailable store = (%v, %v), want empty", infos, err)
	}
}

func TestWrite_CreatesMarker(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Write(context.Background(), time.Now(), &Note{Title: "m", Front: NewFrontmatter()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if info, err := os.Stat(filepath.Join(s.Root(), ".obsidian")); err != nil || !info.IsDir() {
		t.Errorf("marker dir missing after first write: %v", err)
	}
}

func TestList_WindowAndOrder(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	for _, daysAgo := range []int{0, 2, 40} {
		ts := now.AddDate(0, 0, -daysAgo)
		if _, err := s.Write(context.Background(), ts, &Note{Title: "n", Front: NewFrontmatter()}); err != nil {
			t.Fatalf("Write day -%d: %v", daysAgo, err)
		}
	}
	// Foreign directories must not be indexed.
	if err := os.MkdirAll(filepath.Join(s.Root(), "daily", "not-a-date"), 0o755); err != nil {
		t.Fatal(err)
	}

	infos, err := s.List(7)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List(7) = %d notes, want 2 (the 40-day-old one excluded)", len(infos))
	}
	if infos[0].Date.Before(infos[1].Date) {
		t.Error("List must return newest first")
	}

	all, err := s.List(0)
	if err != nil {
		t.Fatalf("List(0): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(0) = %d notes, want all 3", len(all))
	}
}

func TestParseFrontmatter_Tolerant(t *testing.T) {
	content := "---\n" +
		"date: 2026-08-25\n" +
		"events_count: 2\n" +
		"this line has no colon\n" +
		": empty key\n" +
		"tags: [a, b]\n" +
		"ratio: 0.5\n" +
		"done: true\n" +
		"---\n\nbody text\n"

	meta, body, skipped := ParseFrontmatter(content)
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if got, _ := meta.Str("date"); got != "2026-08-25" {
		t.Errorf("date = %q", got)
	}
	if got, _ := meta.Int("events_count"); got != 2 {
		t.Errorf("events_count = %d", got)
	}
	if v, ok := meta["ratio"]; !ok || v.Kind() != KindFloat {
		t.Errorf("ratio kind = %v", v.Kind())
	}
	if v, ok := meta["done"]; !ok || v.Kind() != KindBool {
		t.Errorf("done kind = %v", v.Kind())
	}
	if body != "body text\n" {
		t.Errorf("body = %q", body)
	}
}

func TestParseFrontmatter_NoFence(t *testing.T) {
	meta, body, skipped := ParseFrontmatter("just a body\n")
	if len(meta) != 0 || skipped != 0 || body != "just a body\n" {
		t.Errorf("no-fence parse = (%v, %q, %d)", meta, body, skipped)
	}
}

func TestParseFrontmatter_UnterminatedFence(t *testing.T) {
	content := "---\nkey: value\nno closing fence"
	meta, body, _ := ParseFrontmatter(content)
	if len(meta) != 0 || body != content {
		t.Errorf("unterminated fence must fall back to body-only, got meta=%v body=%q", meta, body)
	}
}

func BenchmarkSanitizeTitle(b *testing.B) {
	title := "Debug ModuleNotFound 모듈 오류: No module named pandas (retry #3)"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		SanitizeTitle(title)
	}
}
