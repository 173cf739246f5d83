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
// This file tracks prediction bias: a rolling window of signed errors
// (predicted − observed) per phase, labeled and fed back into forecasts as
// a damped correction.
package belief

// biasWindow bounds the rolling error list.
const biasWindow = 50

// Bias labels and their mean-error cutoffs.
const (
	BiasUnbiased          = "unbiased"
	BiasOptimistic        = "optimistic"
	BiasHighlyOptimistic  = "highly_optimistic"
	BiasPessimistic       = "pessimistic"
	BiasHighlyPessimistic = "highly_pessimistic"

	biasCutoff       = 0.05
	biasStrongCutoff = 0.15
)

// biasRampObservations is the count at which the correction reaches full
// strength; below it the correction is scaled down so a handful of noisy
// errors cannot swing forecasts.
const biasRampObservations = 10

// BiasProfile is the rolling signed-error record for one phase.
type BiasProfile struct {
	Errors []float64 `json:"errors"`
}

// record appends one signed mean error, trimming to the window.
func (p *BiasProfile) record(err float64) {
	p.Errors = append(p.Errors, err)
	if len(p.Errors) > biasWindow {
		p.Errors = p.Errors[len(p.Errors)-biasWindow:]
	}
}

// meanError is the rolling mean of the signed errors; 0 when empty.
func (p *BiasProfile) meanError() float64 {
	if len(p.Errors) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range p.Errors {
		sum += e
	}
	return sum / float64(len(p.Errors))
}

// correction is the damped mean error subtracted from forecasts. A phase
// that consistently over-predicts (positive mean error) gets pulled down.
func (p *BiasProfile) correction() float64 {
	ramp := float64(len(p.Errors)) / biasRampObservations
	if ramp > 1 {
		ramp = 1
	}
	return p.meanError() * ramp
}

// Label classifies the rolling mean error. Negative means predictions run
// low (optimistic about uncertainty), positive means they run high.
func (p *BiasProfile) Label() string {
	m := p.meanError()
	switch {
	case m <= -biasStrongCutoff:
		return BiasHighlyOptimistic
	case m <= -biasCutoff:
		return BiasOptimistic
	case m < biasCutoff:
		return BiasUnbiased
	case m < biasStrongCutoff:
		return BiasPessimistic
	default:
		return BiasHighlyPessimistic
	}
}
