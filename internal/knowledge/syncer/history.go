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
// This file keeps the in-memory sync history and its snapshot persisted
// across restarts.
package syncer

import (
	"path/filepath"
	"sync"
	"time"

	"udo/internal/knowledge/storage"
)

// historySize bounds the in-memory batch record ring.
const historySize = 100

// stateFileName is the coordinator snapshot under the state directory.
const stateFileName = "sync_state.json"

// BatchRecord describes one flushed batch.
type BatchRecord struct {
	ID       string        `json:"id"`
	NotePath string        `json:"note_path,omitempty"`
	Events   int           `json:"events"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// syncState is the persisted coordinator snapshot.
type syncState struct {
	TotalSyncs       int64         `json:"total_syncs"`
	TotalEvents      int64         `json:"total_events"`
	DeadLetterEvents int64         `json:"dead_letter_events"`
	History          []BatchRecord `json:"history"`
}

// history tracks flush totals and the last historySize batch records.
type history struct {
	mu         sync.Mutex
	totalSync  int64
	totalEvent int64
	deadLetter int64
	records    []BatchRecord
}

func (h *history) record(r BatchRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalSync++
	h.totalEvent += int64(r.Events)
	h.records = append(h.records, r)
	if len(h.records) > historySize {
		h.records = h.records[len(h.records)-historySize:]
	}
}

func (h *history) countDeadLetter(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deadLetter += int64(n)
}

func (h *history) snapshot() syncState {
	h.mu.Lock()
	defer h.mu.Unlock()
	records := make([]BatchRecord, len(h.records))
	copy(records, h.records)
	return syncState{
		TotalSyncs:       h.totalSync,
		TotalEvents:      h.totalEvent,
		DeadLetterEvents: h.deadLetter,
		History:          records,
	}
}

func (h *history) restore(s syncState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalSync = s.TotalSyncs
	h.totalEvent = s.TotalEvents
	h.deadLetter = s.DeadLetterEvents
	h.records = append([]BatchRecord(nil), s.History...)
}

func statePath(stateDir string) string {
	return filepath.Join(stateDir, stateFileName)
}

// saveState snapshots the history to <state_dir>/sync_state.json.
func (h *history) saveState(stateDir string) error {
	return storage.WriteJSON(statePath(stateDir), h.snapshot())
}

// loadState restores a previous snapshot; a missing file is a fresh start.
func (h *history) loadState(stateDir string) error {
	var s syncState
	if err := storage.ReadJSON(statePath(stateDir), &s); err != nil {
		return err
	}
	h.restore(s)
	return nil
}
