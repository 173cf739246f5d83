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

// Package storage resolves the process state directory and owns the
// append-only JSONL logs and atomic JSON snapshots kept under it.
// This file implements the JSONL appenders.
package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// JSONLog is an append-only log of one JSON document per line. Appends are
// serialized by a mutex and each append opens, writes, and closes the file,
// trading a syscall per record for durability across crashes. These logs are
// low-rate (one line per prediction or per dropped batch), so the cost is
// irrelevant.
type JSONLog struct {
	mu   sync.Mutex
	path string
}

// NewJSONLog creates an appender for the given file path.
func NewJSONLog(path string) *JSONLog {
	return &JSONLog{path: path}
}

// Convenience constructors for the well-known logs under a state directory.

func PredictionsLog(stateDir string) *JSONLog {
	return NewJSONLog(filepath.Join(stateDir, PredictionsLogName))
}

func GroundTruthLog(stateDir string) *JSONLog {
	return NewJSONLog(filepath.Join(stateDir, GroundTruthLogName))
}

func CoverageTrendLog(stateDir string) *JSONLog {
	return NewJSONLog(filepath.Join(stateDir, CoverageTrendName))
}

func DeadLetterLog(stateDir string) *JSONLog {
	return NewJSONLog(filepath.Join(stateDir, DeadLetterLogName))
}

// Path returns the file path the log appends to.
func (l *JSONLog) Path() string { return l.path }

// Append marshals v and writes it as a single line.
func (l *JSONLog) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s line: %w", filepath.Base(l.path), err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("storage: create dir for %s: %w", l.path, err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("storage: append to %s: %w", filepath.Base(l.path), err)
	}
	return nil
}

// Count returns the number of lines currently in the log; 0 for a missing
// file.
func (l *JSONLog) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: open %s: %w", l.path, err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}

// Each decodes every line into a fresh value produced by newv and passes it
// to fn; iteration stops on the first error. A missing file iterates zero
// times.
func (l *JSONLog) Each(newv func() any, fn func(v any) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("storage: open %s: %w", l.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		v := newv()
		if err := json.Unmarshal(sc.Bytes(), v); err != nil {
			return fmt.Errorf("storage: decode %s line: %w", filepath.Base(l.path), err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}
