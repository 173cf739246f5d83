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

// Package vault persists notes into a date-partitioned markdown hierarchy:
// <root>/<daily>/<YYYY-MM-DD>/<YYYY-MM-DD_HHMMSS_slug>.md. Writes are
// atomic (temp file + rename) and filenames are made unique with numeric
// suffixes, so concurrent or repeated writes never clobber an existing note.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// EnvVaultPath is consulted for the vault root when no explicit root is
// configured.
const EnvVaultPath = "OBSIDIAN_VAULT_PATH"

const (
	defaultDailyDir = "daily"
	defaultMarker   = ".obsidian"
	dateLayout      = "2006-01-02"
	nameLayout      = "2006-01-02_150405"
)

// ErrUnavailable is returned by write operations when no vault root exists.
// Construction never fails on a missing vault; callers check Available and
// degrade instead.
var ErrUnavailable = errors.New("vault: unavailable")

// Config configures a Store.
type Config struct {
	// Root is the vault root directory. Empty falls back to the
	// OBSIDIAN_VAULT_PATH environment variable.
	Root string

	// DailyDir is the subdirectory holding per-date note directories.
	// Defaults to "daily".
	DailyDir string

	// Marker is the hidden marker directory ensured under the root on the
	// first write. Defaults to ".obsidian".
	Marker string
}

// Note is one unit of persistence: a title (rendered as the H1 heading),
// an ordered frontmatter header, and a markdown body.
type Note struct {
	Title string
	Front *Frontmatter
	Body  string
}

// Encode renders the on-disk form: fenced frontmatter, blank line, heading,
// blank line, body. UTF-8, no BOM.
func (n *Note) Encode() []byte {
	var sb strings.Builder
	if n.Front != nil {
		n.Front.encode(&sb)
	} else {
		sb.WriteString("---\n---\n")
	}
	sb.WriteByte('\n')
	if n.Title != "" {
		sb.WriteString("# ")
		sb.WriteString(n.Title)
		sb.WriteString("\n\n")
	}
	sb.WriteString(n.Body)
	if !strings.HasSuffix(n.Body, "\n") {
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Info is a listing summary for one note file.
type Info struct {
	Path string
	Name string
	Date time.Time
	Size int64
}

// Store writes and reads notes under a vault root. A Store constructed
// against a missing root is still usable: writes fail with ErrUnavailable,
// reads return empty listings, and Available reports false throughout.
type Store struct {
	root      string
	dailyDir  string
	marker    string
	available bool
	log       zerolog.Logger
}

// New resolves the root (config, then environment) and probes it. A missing
// or empty root is not an error; it just leaves the store unavailable.
func New(cfg Config, log zerolog.Logger) *Store {
	root := cfg.Root
	if root == "" {
		root = os.Getenv(EnvVaultPath)
	}
	dailyDir := cfg.DailyDir
	if dailyDir == "" {
		dailyDir = defaultDailyDir
	}
	marker := cfg.Marker
	if marker == "" {
		marker = defaultMarker
	}

	s := &Store{
		root:     root,
		dailyDir: dailyDir,
		marker:   marker,
		log:      log.With().Str("component", "vault").Logger(),
	}
	if root == "" {
		s.log.Warn().Msg("no vault root configured; persistence disabled")
		return s
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		s.log.Warn().Str("root", root).Msg("vault root missing; persistence disabled")
		return s
	}
	s.available = true
	return s
}

// Available reports whether the vault root exists and writes can succeed.
func (s *Store) Available() bool { return s.available }

// Root returns the resolved vault root ("" when unconfigured).
func (s *Store) Root() string { return s.root }

// Write persists a note into the daily directory for ts, deriving the
// filename from the timestamp and sanitized title and suffixing -2, -3, …
// on collision. The content lands via temp-file-plus-rename so an I/O error
// never leaves a partial file under the final name. The context is honored
// between steps; file syscalls themselves are not interruptible.
func (s *Store) Write(ctx context.Context, ts time.Time, note *Note) (string, error) {
	if !s.available {
		return "", ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	day := filepath.Join(s.root, s.dailyDir, ts.Format(dateLayout))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", fmt.Errorf("vault: create daily dir: %w", err)
	}
	// The marker directory is the vault presence probe for other tools;
	// ensure it exists once notes start landing.
	if err := os.MkdirAll(filepath.Join(s.root, s.marker), 0o755); err != nil {
		return "", fmt.Errorf("vault: create marker dir: %w", err)
	}

	base := ts.Format(nameLayout) + "_" + SanitizeTitle(note.Title)
	path := filepath.Join(day, base+".md")
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(day, fmt.Sprintf("%s-%d.md", base, n))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := renameio.WriteFile(path, note.Encode(), 0o644); err != nil {
		return "", fmt.Errorf("vault: write %s: %w", filepath.Base(path), err)
	}
	s.log.Debug().Str("path", path).Msg("note written")
	return path, nil
}

// List returns note summaries from daily directories covering the last
// `days` days (today inclusive), newest first. days <= 0 lists the whole
// vault. On an unavailable vault it returns an empty slice.
func (s *Store) List(days int) ([]Info, error) {
	if !s.available {
		return nil, nil
	}

	dailyRoot := filepath.Join(s.root, s.dailyDir)
	dirs, err := os.ReadDir(dailyRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vault: list %s: %w", dailyRoot, err)
	}

	var cutoff time.Time
	if days > 0 {
		now := time.Now()
		cutoff = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
			AddDate(0, 0, -(days - 1))
	}

	var out []Info
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		date, err := time.ParseInLocation(dateLayout, d.Name(), time.Local)
		if err != nil {
			continue // foreign directory; not ours to index
		}
		if days > 0 && date.Before(cutoff) {
			continue
		}
		dayDir := filepath.Join(dailyRoot, d.Name())
		files, err := os.ReadDir(dayDir)
		if err != nil {
			s.log.Warn().Err(err).Str("dir", dayDir).Msg("skipping unreadable daily dir")
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			out = append(out, Info{
				Path: filepath.Join(dayDir, f.Name()),
				Name: f.Name(),
				Date: date,
				Size: info.Size(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Read parses the note at path into (frontmatter, body). Malformed
// frontmatter lines are skipped with a warning, never an error; only the
// underlying file read can fail.
func (s *Store) Read(path string) (Meta, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("vault: read %s: %w", filepath.Base(path), err)
	}
	meta, body, skipped := ParseFrontmatter(string(data))
	if skipped > 0 {
		s.log.Warn().Int("lines", skipped).Str("path", path).Msg("ignored malformed frontmatter lines")
	}
	return meta, body, nil
}
