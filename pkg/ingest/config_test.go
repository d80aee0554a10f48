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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carverauto/flowtopo/pkg/config"
	"github.com/carverauto/flowtopo/pkg/mactable"
	"github.com/carverauto/flowtopo/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigUnmarshalDurations(t *testing.T) {
	raw := `{
		"confidence_floor": 0.1,
		"decay_mode": "linear",
		"agent_stale_ttl": "15m",
		"reconciliation_interval": "45s",
		"move_grace_period": "1m",
		"baseline_sampling_rate": 256
	}`

	var cfg Config

	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.InDelta(t, 0.1, cfg.ConfidenceFloor, 1e-9)
	assert.Equal(t, "linear", cfg.DecayMode)
	assert.Equal(t, 15*time.Minute, cfg.AgentStaleTTL)
	assert.Equal(t, 45*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, time.Minute, cfg.MoveGracePeriod)
	assert.Equal(t, uint32(256), cfg.BaselineSamplingRate)
}

func TestConfigUnmarshalRejectsGarbage(t *testing.T) {
	var cfg Config

	err := json.Unmarshal([]byte(`{"agent_stale_ttl": "soon"}`), &cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestConfigValidateFillsDefaults(t *testing.T) {
	var cfg Config

	require.NoError(t, cfg.Validate())

	def := DefaultConfig()
	assert.Equal(t, def.ConfidenceFloor, cfg.ConfidenceFloor)
	assert.Equal(t, def.OverlapThreshold, cfg.OverlapThreshold)
	assert.Equal(t, def.ReconcileInterval, cfg.ReconcileInterval)
	assert.Equal(t, def.BaselineSamplingRate, cfg.BaselineSamplingRate)
	assert.Equal(t, def.MaxAgents, cfg.MaxAgents)
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "floor above ceiling",
			mutate:  func(c *Config) { c.ConfidenceFloor = 20 },
			wantErr: ErrInvalidConfidenceFloor,
		},
		{
			name:    "move penalty out of range",
			mutate:  func(c *Config) { c.MovePenaltyFactor = 1.5 },
			wantErr: ErrInvalidMovePenalty,
		},
		{
			name:    "unknown decay mode",
			mutate:  func(c *Config) { c.DecayMode = "parabolic" },
			wantErr: ErrInvalidDecayMode,
		},
		{
			name:    "overlap above one",
			mutate:  func(c *Config) { c.OverlapThreshold = 1.1 },
			wantErr: ErrInvalidOverlap,
		},
		{
			name:    "negative cardinality",
			mutate:  func(c *Config) { c.MinSetCardinality = -2 },
			wantErr: ErrInvalidCardinality,
		},
		{
			name:    "nats without url",
			mutate:  func(c *Config) { c.NATS = &topology.NATSConfig{StreamName: "topology"} },
			wantErr: topology.ErrNATSURLRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfigProjections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayMode = "linear"
	cfg.MaxMACsPerAgent = 1000
	cfg.EdgeConfidenceFloor = 0.3
	cfg.AgentStaleTTL = 20 * time.Minute

	policy := cfg.Policy()
	assert.Equal(t, mactable.DecayLinear, policy.DecayMode)
	assert.Equal(t, 1000, policy.MaxEntries)
	assert.Equal(t, cfg.ConfidenceFloor, policy.ConfidenceFloor)

	topo := cfg.TopologyConfig()
	assert.InDelta(t, 0.3, topo.ConfidenceFloor, 1e-9)
	assert.Equal(t, 20*time.Minute, topo.AgentStaleTTL)
	assert.Equal(t, cfg.OverlapThreshold, topo.OverlapThreshold)
}

func TestConfigLoadAndValidateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowtopo.json")

	raw := `{
		"overlap_threshold": 0.6,
		"reconciliation_interval": "10s",
		"logging": {"level": "debug"}
	}`

	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg := DefaultConfig()
	loader := config.NewConfig(nil)

	require.NoError(t, loader.LoadAndValidate(context.Background(), path, cfg))

	assert.InDelta(t, 0.6, cfg.OverlapThreshold, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.ReconcileInterval)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched knobs keep their defaults
	assert.Equal(t, DefaultConfig().MinSetCardinality, cfg.MinSetCardinality)
}
