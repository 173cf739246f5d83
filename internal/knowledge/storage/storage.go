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
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/google/renameio/v2"
)

// Environment variables consulted by Dir, in order.
const (
	EnvStorageDir = "UDO_STORAGE_DIR"
	EnvHome       = "UDO_HOME"
)

// defaultDirName is the state directory created under the user's home when
// no environment override is present.
const defaultDirName = ".udo"

// Well-known file names under the state directory.
const (
	PredictionsLogName = "predictions_log.jsonl"
	GroundTruthLogName = "prediction_ground_truth.jsonl"
	CoverageTrendName  = "coverage_trend.jsonl"
	DeadLetterLogName  = "dead_letter.jsonl"
	BayesianDirName    = "bayesian"
)

// Dir resolves the state directory: UDO_STORAGE_DIR, then UDO_HOME, then
// <home>/.udo. The directory is created if missing.
func Dir() (string, error) {
	if dir := os.Getenv(EnvStorageDir); dir != "" {
		return ensure(dir)
	}
	if dir := os.Getenv(EnvHome); dir != "" {
		return ensure(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("storage: resolve home directory: %w", err)
	}
	return ensure(filepath.Join(home, defaultDirName))
}

func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create state dir %s: %w", dir, err)
	}
	return dir, nil
}

// WriteJSON atomically replaces path with the JSON encoding of v. The write
// goes to a temp file in the same directory and is renamed into place, so a
// crash never leaves a partial snapshot under the target name.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: create dir for %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the JSON file at path into out. A missing file is
// reported with os.ErrNotExist intact so callers can treat first runs as
// empty state.
func ReadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("storage: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
