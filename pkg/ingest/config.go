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

package ingest

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/mactable"
	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/carverauto/flowtopo/pkg/topology"
)

// Config is the full pipeline configuration: learning policy, inference
// tunables, capacity limits and the optional snapshot publisher.
type Config struct {
	ConfidenceFloor       float64              `json:"confidence_floor"`
	ConfidenceCeiling     float64              `json:"confidence_ceiling"`
	MovePenaltyFactor     float64              `json:"move_penalty_factor"`
	DecayRate             float64              `json:"decay_rate"`
	DecayMode             string               `json:"decay_mode"`
	MoveGracePeriod       time.Duration        `json:"-"`
	MaxMACsPerAgent       int                  `json:"max_macs_per_agent"`
	OverlapThreshold      float64              `json:"overlap_threshold"`
	MinSetCardinality     int                  `json:"min_set_cardinality"`
	EdgeConfidenceFloor   float64              `json:"edge_confidence_floor"`
	AgentStaleTTL         time.Duration        `json:"-"`
	MaxAgents             int                  `json:"max_agents"`
	MaxInterfacesPerAgent int                  `json:"max_interfaces_per_agent"`
	ReconcileInterval     time.Duration        `json:"-"`
	BaselineSamplingRate  uint32               `json:"baseline_sampling_rate"`
	NATS                  *topology.NATSConfig `json:"nats,omitempty"`
	Logging               *logger.Config       `json:"logging,omitempty"`
}

const (
	defaultReconcileInterval    = 30 * time.Second
	defaultBaselineSamplingRate = 128
	defaultAgentStaleTTL        = 10 * time.Minute
	defaultEdgeConfidenceFloor  = 0.2
	defaultMaxAgents            = 1024
	defaultMaxInterfaces        = 4096
)

// DefaultConfig returns a configuration good enough to run against a small
// testbed without a config file.
func DefaultConfig() *Config {
	policy := mactable.DefaultPolicy()
	topo := topology.DefaultConfig()

	return &Config{
		ConfidenceFloor:       policy.ConfidenceFloor,
		ConfidenceCeiling:     policy.ConfidenceCeiling,
		MovePenaltyFactor:     policy.MovePenaltyFactor,
		DecayRate:             policy.DecayRate,
		DecayMode:             string(policy.DecayMode),
		MoveGracePeriod:       policy.MoveGracePeriod,
		MaxMACsPerAgent:       policy.MaxEntries,
		OverlapThreshold:      topo.OverlapThreshold,
		MinSetCardinality:     topo.MinSetCardinality,
		EdgeConfidenceFloor:   defaultEdgeConfidenceFloor,
		AgentStaleTTL:         defaultAgentStaleTTL,
		MaxAgents:             defaultMaxAgents,
		MaxInterfacesPerAgent: defaultMaxInterfaces,
		ReconcileInterval:     defaultReconcileInterval,
		BaselineSamplingRate:  defaultBaselineSamplingRate,
	}
}

// UnmarshalJSON accepts duration fields as strings like "30s" or "10m".
func (c *Config) UnmarshalJSON(data []byte) error {
	type ConfigAlias struct {
		ConfidenceFloor       float64              `json:"confidence_floor"`
		ConfidenceCeiling     float64              `json:"confidence_ceiling"`
		MovePenaltyFactor     float64              `json:"move_penalty_factor"`
		DecayRate             float64              `json:"decay_rate"`
		DecayMode             string               `json:"decay_mode"`
		MoveGracePeriod       models.Duration      `json:"move_grace_period"`
		MaxMACsPerAgent       int                  `json:"max_macs_per_agent"`
		OverlapThreshold      float64              `json:"overlap_threshold"`
		MinSetCardinality     int                  `json:"min_set_cardinality"`
		EdgeConfidenceFloor   float64              `json:"edge_confidence_floor"`
		AgentStaleTTL         models.Duration      `json:"agent_stale_ttl"`
		MaxAgents             int                  `json:"max_agents"`
		MaxInterfacesPerAgent int                  `json:"max_interfaces_per_agent"`
		ReconcileInterval     models.Duration      `json:"reconciliation_interval"`
		BaselineSamplingRate  uint32               `json:"baseline_sampling_rate"`
		NATS                  *topology.NATSConfig `json:"nats,omitempty"`
		Logging               *logger.Config       `json:"logging,omitempty"`
	}

	alias := ConfigAlias{
		MoveGracePeriod:   models.Duration(c.MoveGracePeriod),
		AgentStaleTTL:     models.Duration(c.AgentStaleTTL),
		ReconcileInterval: models.Duration(c.ReconcileInterval),
	}

	if err := json.Unmarshal(data, &alias); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}

	c.ConfidenceFloor = alias.ConfidenceFloor
	c.ConfidenceCeiling = alias.ConfidenceCeiling
	c.MovePenaltyFactor = alias.MovePenaltyFactor
	c.DecayRate = alias.DecayRate
	c.DecayMode = alias.DecayMode
	c.MoveGracePeriod = alias.MoveGracePeriod.AsDuration()
	c.MaxMACsPerAgent = alias.MaxMACsPerAgent
	c.OverlapThreshold = alias.OverlapThreshold
	c.MinSetCardinality = alias.MinSetCardinality
	c.EdgeConfidenceFloor = alias.EdgeConfidenceFloor
	c.AgentStaleTTL = alias.AgentStaleTTL.AsDuration()
	c.MaxAgents = alias.MaxAgents
	c.MaxInterfacesPerAgent = alias.MaxInterfacesPerAgent
	c.ReconcileInterval = alias.ReconcileInterval.AsDuration()
	c.BaselineSamplingRate = alias.BaselineSamplingRate
	c.NATS = alias.NATS
	c.Logging = alias.Logging

	return nil
}

// applyDefaults fills in zero values so a partial config file works.
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = def.ConfidenceFloor
	}

	if c.ConfidenceCeiling == 0 {
		c.ConfidenceCeiling = def.ConfidenceCeiling
	}

	if c.MovePenaltyFactor == 0 {
		c.MovePenaltyFactor = def.MovePenaltyFactor
	}

	if c.DecayRate == 0 {
		c.DecayRate = def.DecayRate
	}

	if c.DecayMode == "" {
		c.DecayMode = def.DecayMode
	}

	if c.MoveGracePeriod == 0 {
		c.MoveGracePeriod = def.MoveGracePeriod
	}

	if c.MaxMACsPerAgent == 0 {
		c.MaxMACsPerAgent = def.MaxMACsPerAgent
	}

	if c.OverlapThreshold == 0 {
		c.OverlapThreshold = def.OverlapThreshold
	}

	if c.MinSetCardinality == 0 {
		c.MinSetCardinality = def.MinSetCardinality
	}

	if c.EdgeConfidenceFloor == 0 {
		c.EdgeConfidenceFloor = def.EdgeConfidenceFloor
	}

	if c.AgentStaleTTL == 0 {
		c.AgentStaleTTL = def.AgentStaleTTL
	}

	if c.MaxAgents == 0 {
		c.MaxAgents = def.MaxAgents
	}

	if c.MaxInterfacesPerAgent == 0 {
		c.MaxInterfacesPerAgent = def.MaxInterfacesPerAgent
	}

	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = def.ReconcileInterval
	}

	if c.BaselineSamplingRate == 0 {
		c.BaselineSamplingRate = def.BaselineSamplingRate
	}
}

// Validate implements config.Validator. It also fills in defaults so a
// loaded config is ready to use.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.ConfidenceFloor <= 0 || c.ConfidenceFloor >= c.ConfidenceCeiling {
		return ErrInvalidConfidenceFloor
	}

	if c.MovePenaltyFactor <= 0 || c.MovePenaltyFactor >= 1 {
		return ErrInvalidMovePenalty
	}

	if c.DecayRate < 0 {
		return ErrInvalidDecayRate
	}

	if c.DecayMode != string(mactable.DecayExponential) && c.DecayMode != string(mactable.DecayLinear) {
		return ErrInvalidDecayMode
	}

	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		return ErrInvalidOverlap
	}

	if c.MinSetCardinality < 1 {
		return ErrInvalidCardinality
	}

	if c.ReconcileInterval <= 0 {
		return ErrInvalidInterval
	}

	if c.AgentStaleTTL <= 0 {
		return ErrInvalidStaleTTL
	}

	if c.NATS != nil {
		if err := c.NATS.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Policy projects the learning-table portion of the config.
func (c *Config) Policy() mactable.Policy {
	return mactable.Policy{
		ConfidenceFloor:   c.ConfidenceFloor,
		ConfidenceCeiling: c.ConfidenceCeiling,
		MovePenaltyFactor: c.MovePenaltyFactor,
		DecayRate:         c.DecayRate,
		DecayMode:         mactable.DecayMode(c.DecayMode),
		MoveGracePeriod:   c.MoveGracePeriod,
		MaxEntries:        c.MaxMACsPerAgent,
	}
}

// TopologyConfig projects the inference portion of the config.
func (c *Config) TopologyConfig() topology.Config {
	return topology.Config{
		OverlapThreshold:  c.OverlapThreshold,
		MinSetCardinality: c.MinSetCardinality,
		ConfidenceFloor:   c.EdgeConfidenceFloor,
		AgentStaleTTL:     c.AgentStaleTTL,
	}
}
