/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mactable

import (
	"math"
	"time"
)

// DecayMode selects the confidence decay function.
type DecayMode string

const (
	DecayExponential DecayMode = "exponential"
	DecayLinear      DecayMode = "linear"
)

// Policy holds the tunables governing sighting confidence. The defaults
// are starting points, not calibrated constants; deployments should tune
// them against a known topology.
type Policy struct {
	ConfidenceFloor   float64       `json:"confidence_floor"`
	ConfidenceCeiling float64       `json:"confidence_ceiling"`
	MovePenaltyFactor float64       `json:"move_penalty_factor"`
	DecayRate         float64       `json:"decay_rate"`
	DecayMode         DecayMode     `json:"decay_mode"`
	MoveGracePeriod   time.Duration `json:"-"`
	MaxEntries        int           `json:"max_macs_per_agent"`
}

const (
	defaultConfidenceFloor   = 0.05
	defaultConfidenceCeiling = 10.0
	defaultMovePenaltyFactor = 0.5
	defaultDecayRate         = 0.002 // per second; halves in ~5m45s
	defaultMoveGracePeriod   = 30 * time.Second
	defaultMaxEntries        = 65536
)

func DefaultPolicy() Policy {
	return Policy{
		ConfidenceFloor:   defaultConfidenceFloor,
		ConfidenceCeiling: defaultConfidenceCeiling,
		MovePenaltyFactor: defaultMovePenaltyFactor,
		DecayRate:         defaultDecayRate,
		DecayMode:         DecayExponential,
		MoveGracePeriod:   defaultMoveGracePeriod,
		MaxEntries:        defaultMaxEntries,
	}
}

// withDefaults fills in zero values so a partially specified policy behaves.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()

	if p.ConfidenceFloor <= 0 {
		p.ConfidenceFloor = def.ConfidenceFloor
	}

	if p.ConfidenceCeiling <= 0 {
		p.ConfidenceCeiling = def.ConfidenceCeiling
	}

	if p.MovePenaltyFactor <= 0 || p.MovePenaltyFactor >= 1 {
		p.MovePenaltyFactor = def.MovePenaltyFactor
	}

	if p.DecayRate <= 0 {
		p.DecayRate = def.DecayRate
	}

	if p.DecayMode != DecayLinear {
		p.DecayMode = DecayExponential
	}

	if p.MoveGracePeriod <= 0 {
		p.MoveGracePeriod = def.MoveGracePeriod
	}

	if p.MaxEntries <= 0 {
		p.MaxEntries = def.MaxEntries
	}

	return p
}

// decayed computes the confidence as of now from the value stored at last.
// Decay is evaluated lazily at read time so no background ticker is needed
// for correctness.
func (p Policy) decayed(confidence float64, last, now time.Time) float64 {
	dt := now.Sub(last).Seconds()
	if dt <= 0 {
		return confidence
	}

	switch p.DecayMode {
	case DecayLinear:
		confidence -= p.DecayRate * dt
	default:
		confidence *= math.Exp(-p.DecayRate * dt)
	}

	if confidence < 0 {
		return 0
	}

	return confidence
}
