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

// Package belief maintains per-phase Beta-Binomial posteriors over the five
// uncertainty dimensions, plus a per-phase bias profile that corrects for
// systematic over- or under-prediction. Observations arrive from the sync
// coordinator's event fan-out; predictions and ground truth land in
// append-only JSONL logs.
package belief

import (
	"math"
	"time"
)

// Phases are the development-lifecycle stages beliefs condition on.
var Phases = []string{"ideation", "design", "mvp", "implementation", "testing"}

// Dimensions are the uncertainty axes tracked per phase.
var Dimensions = []string{"technical", "market", "resource", "timeline", "quality"}

// Quantum states: categorical labels thresholded from predicted magnitude.
const (
	StateDeterministic = "deterministic"
	StateProbabilistic = "probabilistic"
	StateQuantum       = "quantum"
	StateChaotic       = "chaotic"
	StateVoid          = "void"
)

// Magnitude thresholds separating the quantum states.
var stateThresholds = []struct {
	limit float64
	label string
}{
	{0.1, StateDeterministic},
	{0.3, StateProbabilistic},
	{0.6, StateQuantum},
	{0.9, StateChaotic},
}

// successTolerance is the absolute error inside which a point prediction
// counts as a posterior success.
const successTolerance = 0.25

// horizonDrift is the per-step uncertainty growth applied to forecasts
// beyond the immediate horizon.
const horizonDrift = 0.02

// Belief is one (phase, dimension) posterior. Uninformed prior: α=β=1.
type Belief struct {
	Alpha        float64   `json:"alpha"`
	Beta         float64   `json:"beta"`
	Observations int       `json:"observations"`
	LastUpdated  time.Time `json:"last_updated"`
}

func newBelief() *Belief {
	return &Belief{Alpha: 1, Beta: 1}
}

// Mean is the posterior mean α/(α+β).
func (b *Belief) Mean() float64 {
	return b.Alpha / (b.Alpha + b.Beta)
}

// Confidence is 1 − 1/√(α+β+1): a mean-independent width bound on the Beta
// posterior, strictly increasing in the observation count.
func (b *Belief) Confidence() float64 {
	return 1 - 1/math.Sqrt(b.Alpha+b.Beta+1)
}

// observe folds one point-prediction outcome into the posterior.
func (b *Belief) observe(predicted, observed float64, now time.Time) {
	if math.Abs(predicted-observed) <= successTolerance {
		b.Alpha++
	} else {
		b.Beta++
	}
	b.Observations++
	b.LastUpdated = now
}

// quantumState thresholds a magnitude into its categorical label.
func quantumState(magnitude float64) string {
	for _, t := range stateThresholds {
		if magnitude < t.limit {
			return t.label
		}
	}
	return StateVoid
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
