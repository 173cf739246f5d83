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
// This file models frontmatter: an ordered key→value header rendered as
// simple `key: value` lines between `---` fences. Values are a small closed
// enum (string, int, float, bool, string list) rather than anything
// reflective, so rendering and parsing stay trivially predictable.
package vault

import (
	"strconv"
	"strings"
)

// Kind discriminates frontmatter value types.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindList
)

// Value is one frontmatter scalar or list.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	list []string
}

func String(s string) Value  { return Value{kind: KindString, s: s} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func List(items ...string) Value {
	return Value{kind: KindList, list: items}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// Text renders the value the way it appears after the colon in a
// frontmatter line. Lists render as [a, b, c].
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return "[" + strings.Join(v.list, ", ") + "]"
	default:
		return v.s
	}
}

// Str returns the string form of a scalar value. Lists return their
// rendered text.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.s
	}
	return v.Text()
}

// Int64 returns the integer value, or 0 for non-integer kinds.
func (v Value) Int64() int64 { return v.i }

// Items returns the list elements; nil for scalar kinds.
func (v Value) Items() []string { return v.list }

// Frontmatter is an insertion-ordered set of fields. Duplicate keys are not
// rejected; the last write wins on Set, while Add appends unconditionally.
type Frontmatter struct {
	keys   []string
	values map[string]Value
}

// NewFrontmatter returns an empty header.
func NewFrontmatter() *Frontmatter {
	return &Frontmatter{values: make(map[string]Value)}
}

// Set stores key=value, keeping the key's original position if it already
// exists.
func (f *Frontmatter) Set(key string, v Value) *Frontmatter {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = v
	return f
}

// Get returns the value for key.
func (f *Frontmatter) Get(key string) (Value, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (f *Frontmatter) Keys() []string { return f.keys }

// Len returns the number of fields.
func (f *Frontmatter) Len() int { return len(f.keys) }

// encode appends the fenced frontmatter block to sb.
func (f *Frontmatter) encode(sb *strings.Builder) {
	sb.WriteString("---\n")
	for _, k := range f.keys {
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(f.values[k].Text())
		sb.WriteByte('\n')
	}
	sb.WriteString("---\n")
}

// Meta is parsed frontmatter: a best-effort map recovered from a note file.
// Malformed lines are simply absent.
type Meta map[string]Value

// Str returns the string form of the value under key, if present.
func (m Meta) Str(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.Str(), true
}

// Int returns the integer under key, if present and integer-typed.
func (m Meta) Int(key string) (int64, bool) {
	v, ok := m[key]
	if !ok || v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// List returns the list items under key. A scalar value is returned as a
// single-element list, which keeps membership checks uniform for callers.
func (m Meta) List(key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	if v.kind == KindList {
		return v.list
	}
	return []string{v.Str()}
}

// parseValue classifies the text after the colon. Order matters: list
// syntax first, then the narrower scalar types, with plain string as the
// catch-all.
func parseValue(text string) Value {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		inner := strings.TrimSpace(text[1 : len(text)-1])
		if inner == "" {
			return List()
		}
		parts := strings.Split(inner, ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			items = append(items, strings.TrimSpace(p))
		}
		return List(items...)
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Float(f)
	}
	if b, err := strconv.ParseBool(text); err == nil {
		return Bool(b)
	}
	return String(text)
}

// ParseFrontmatter splits a note file into its header and body. The parser
// is deliberately forgiving: it returns every `key: value` line it could
// make sense of and skips the rest, reporting how many lines it skipped.
// It never fails — a file with no frontmatter fence at all parses as an
// empty Meta with the whole content as body.
func ParseFrontmatter(content string) (meta Meta, body string, skipped int) {
	meta = make(Meta)

	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return meta, content, 0
	}

	header, body, found := strings.Cut(rest, "\n---")
	if !found {
		// Unterminated fence: salvage nothing, treat everything as body.
		return meta, content, 0
	}
	// The closing fence line may be followed by "\n" and the body.
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	for _, line := range strings.Split(header, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			skipped++
			continue
		}
		meta[key] = parseValue(val)
	}
	return meta, body, skipped
}
