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

// Package belief maintains per-phase uncertainty posteriors.
// This file is the tracker: prediction, observation intake, and state
// persistence under <state_dir>/bayesian/<project>.json.
package belief

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"udo/internal/knowledge/storage"
	"udo/internal/knowledge/syncer"
)

// DefaultProject names the persisted state file when no project is set.
const DefaultProject = "default"

// Prediction is one forecast for a phase.
type Prediction struct {
	Phase        string             `json:"phase"`
	Magnitude    float64            `json:"predicted_magnitude"`
	Confidence   float64            `json:"confidence"`
	Forecasts    map[string]float64 `json:"forecasts"`
	QuantumState string             `json:"quantum_state"`
	Recommends   []string           `json:"recommendations"`
	Horizon      int                `json:"horizon"`
	At           time.Time          `json:"at"`
}

// trackerState is the persisted snapshot.
type trackerState struct {
	Beliefs map[string]map[string]*Belief `json:"beliefs"`
	Bias    map[string]*BiasProfile       `json:"bias_profiles"`
}

// Tracker owns the posteriors for one project. All methods are safe for
// concurrent use.
type Tracker struct {
	mu       sync.Mutex
	beliefs  map[string]map[string]*Belief // phase → dimension → posterior
	bias     map[string]*BiasProfile
	lastPred map[string]*Prediction

	project  string
	stateDir string
	predLog  *storage.JSONLog
	truthLog *storage.JSONLog
	log      zerolog.Logger
	now      func() time.Time
}

// NewTracker creates a tracker with uninformed priors for every
// (phase, dimension) pair and loads any persisted state for the project.
func NewTracker(stateDir, project string, log zerolog.Logger) *Tracker {
	if project == "" {
		project = DefaultProject
	}
	t := &Tracker{
		beliefs:  make(map[string]map[string]*Belief, len(Phases)),
		bias:     make(map[string]*BiasProfile, len(Phases)),
		lastPred: make(map[string]*Prediction),
		project:  project,
		stateDir: stateDir,
		predLog:  storage.PredictionsLog(stateDir),
		truthLog: storage.GroundTruthLog(stateDir),
		log:      log.With().Str("component", "belief").Logger(),
		now:      time.Now,
	}
	for _, p := range Phases {
		dims := make(map[string]*Belief, len(Dimensions))
		for _, d := range Dimensions {
			dims[d] = newBelief()
		}
		t.beliefs[p] = dims
		t.bias[p] = &BiasProfile{}
	}
	if err := t.Load(); err != nil {
		t.log.Warn().Err(err).Msg("belief state load failed; starting from priors")
	}
	return t
}

// Predict forecasts the uncertainty vector for a phase over the given
// horizon (in steps; 1 is immediate). Each prediction is appended to the
// predictions log.
func (t *Tracker) Predict(phase string, current map[string]float64, horizon int) Prediction {
	if horizon < 1 {
		horizon = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dims := t.dims(phase)
	correction := t.bias[phase].correction()

	forecasts := make(map[string]float64, len(Dimensions))
	magnitude, confidence := 0.0, 0.0
	for _, d := range Dimensions {
		base, ok := current[d]
		if !ok {
			base = dims[d].Mean()
		}
		forecasts[d] = clamp01(base + horizonDrift*float64(horizon-1) - correction)
		magnitude += forecasts[d]
		confidence += dims[d].Confidence()
	}
	magnitude /= float64(len(Dimensions))
	confidence /= float64(len(Dimensions))

	pred := Prediction{
		Phase:        phase,
		Magnitude:    magnitude,
		Confidence:   confidence,
		Forecasts:    forecasts,
		QuantumState: quantumState(magnitude),
		Horizon:      horizon,
		At:           t.now(),
	}
	pred.Recommends = recommend(pred, dominantDimension(forecasts))
	t.lastPred[phase] = &pred

	if err := t.predLog.Append(pred); err != nil {
		t.log.Warn().Err(err).Msg("predictions log append failed")
	}
	return pred
}

// Update scores a prediction against the observed vector: per dimension,
// within successTolerance counts for α, outside for β. The signed mean
// error feeds the phase's bias profile and the ground-truth log.
func (t *Tracker) Update(phase string, pred Prediction, observed map[string]float64, success bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	dims := t.dims(phase)
	errSum, n := 0.0, 0
	for _, d := range Dimensions {
		obs, ok := observed[d]
		if !ok {
			continue
		}
		p := pred.Forecasts[d]
		dims[d].observe(p, obs, now)
		errSum += p - obs
		n++
	}
	if n > 0 {
		t.bias[phase].record(errSum / float64(n))
	}

	entry := map[string]any{
		"phase":     phase,
		"predicted": pred.Forecasts,
		"observed":  observed,
		"success":   success,
		"at":        now,
	}
	if err := t.truthLog.Append(entry); err != nil {
		t.log.Warn().Err(err).Msg("ground-truth log append failed")
	}
}

// RecordObservation implements syncer.ObservationSink: observations derived
// from flushed events are scored against the phase's most recent
// prediction, or against the posterior means when none exists yet.
func (t *Tracker) RecordObservation(obs syncer.Observation) {
	t.mu.Lock()
	last := t.lastPred[obs.Phase]
	t.mu.Unlock()

	var pred Prediction
	if last != nil {
		pred = *last
	} else {
		pred = t.Predict(obs.Phase, nil, 1)
	}
	t.Update(obs.Phase, pred, obs.Observed, obs.Success)
}

// BiasLabel returns the phase's bias classification.
func (t *Tracker) BiasLabel(phase string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.bias[phase]
	if !ok {
		return BiasUnbiased
	}
	return p.Label()
}

// Confidence returns the posterior confidence for one (phase, dimension).
func (t *Tracker) Confidence(phase, dimension string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dims(phase)[dimension].Confidence()
}

// Observations returns the observation count for one (phase, dimension).
func (t *Tracker) Observations(phase, dimension string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dims(phase)[dimension].Observations
}

// Save persists beliefs and bias profiles atomically. Reloading a saved
// state is idempotent.
func (t *Tracker) Save() error {
	t.mu.Lock()
	state := trackerState{Beliefs: t.beliefs, Bias: t.bias}
	t.mu.Unlock()

	path := t.statePath()
	if err := storage.WriteJSON(path, state); err != nil {
		return fmt.Errorf("belief: save %s: %w", t.project, err)
	}
	return nil
}

// Load restores persisted state. A missing file is a fresh start, not an
// error; partial state merges over the priors.
func (t *Tracker) Load() error {
	var state trackerState
	if err := storage.ReadJSON(t.statePath(), &state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for phase, dims := range state.Beliefs {
		have, ok := t.beliefs[phase]
		if !ok {
			continue
		}
		for dim, b := range dims {
			if _, ok := have[dim]; ok && b != nil {
				have[dim] = b
			}
		}
	}
	for phase, p := range state.Bias {
		if _, ok := t.bias[phase]; ok && p != nil {
			t.bias[phase] = p
		}
	}
	return nil
}

func (t *Tracker) statePath() string {
	return filepath.Join(t.stateDir, storage.BayesianDirName, t.project+".json")
}

// dims returns the phase's dimension map, creating posteriors for unknown
// phases so foreign phase labels degrade gracefully instead of panicking.
func (t *Tracker) dims(phase string) map[string]*Belief {
	dims, ok := t.beliefs[phase]
	if !ok {
		dims = make(map[string]*Belief, len(Dimensions))
		for _, d := range Dimensions {
			dims[d] = newBelief()
		}
		t.beliefs[phase] = dims
		t.bias[phase] = &BiasProfile{}
	}
	return dims
}

// dominantDimension picks the highest forecast dimension.
func dominantDimension(forecasts map[string]float64) string {
	best, bestV := "", -1.0
	for _, d := range Dimensions {
		if v := forecasts[d]; v > bestV {
			best, bestV = d, v
		}
	}
	return best
}

// recommend derives advice from the quantum state and the dominant
// uncertainty dimension. Deterministic on its inputs.
func recommend(pred Prediction, dominant string) []string {
	var out []string
	switch pred.QuantumState {
	case StateDeterministic:
		out = append(out, "uncertainty is low; commit to the current plan")
	case StateProbabilistic:
		out = append(out, "moderate uncertainty; keep fallback options open")
	case StateQuantum:
		out = append(out, "high uncertainty; run cheap experiments before committing")
	case StateChaotic:
		out = append(out, "very high uncertainty; reduce scope and shorten the feedback loop")
	case StateVoid:
		out = append(out, "uncertainty exceeds the model's useful range; revisit assumptions")
	}

	switch dominant {
	case "technical":
		out = append(out, "technical risk dominates; spike the riskiest integration first")
	case "market":
		out = append(out, "market risk dominates; validate demand before building further")
	case "resource":
		out = append(out, "resource risk dominates; rebalance staffing or cut scope")
	case "timeline":
		out = append(out, "timeline risk dominates; re-plan milestones with buffers")
	case "quality":
		out = append(out, "quality risk dominates; invest in tests before new features")
	}

	if pred.Confidence < 0.3 {
		out = append(out, "few observations so far; treat forecasts as provisional")
	}
	return out
}
