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
// This file defines the observation fan-out from flushed events to the
// belief tracker. The event-type→observation mapping is configuration, not
// hard-wired: callers swap in their own mapper.
package syncer

// Observation is one derived belief input: an observed per-dimension
// uncertainty vector attributed to a development phase.
type Observation struct {
	Phase    string
	Observed map[string]float64
	Success  bool
}

// ObservationSink receives observations derived from flushed events.
type ObservationSink interface {
	RecordObservation(obs Observation)
}

// ObservationMapper derives an Observation from an event, or reports that
// the event type carries none.
type ObservationMapper func(e Event) (Observation, bool)

// DefaultObservationMapper maps task_completion and phase_transition events
// that carry an explicit phase and an "observed" dimension→value payload.
// Everything else is skipped. The phase of a transition is its destination.
func DefaultObservationMapper(e Event) (Observation, bool) {
	var phase string
	switch e.Type {
	case TypeTaskCompletion:
		phase = e.str("phase")
	case TypePhaseTransition:
		phase = e.str("to")
	default:
		return Observation{}, false
	}
	if phase == "" {
		return Observation{}, false
	}

	observed := floatMap(e.Data["observed"])
	if len(observed) == 0 {
		return Observation{}, false
	}

	success := true
	if v, ok := e.Data["success"].(bool); ok {
		success = v
	}
	return Observation{Phase: phase, Observed: observed, Success: success}, true
}

// floatMap coerces a decoded-JSON payload value into dimension→float64.
func floatMap(v any) map[string]float64 {
	switch m := v.(type) {
	case map[string]float64:
		return m
	case map[string]any:
		out := make(map[string]float64, len(m))
		for k, raw := range m {
			switch n := raw.(type) {
			case float64:
				out[k] = n
			case int:
				out[k] = float64(n)
			}
		}
		return out
	default:
		return nil
	}
}
