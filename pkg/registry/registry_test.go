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

package registry

import (
	"testing"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(maxAgents, maxInterfaces int) *Registry {
	return NewRegistry(maxAgents, maxInterfaces, logger.NewTestLogger())
}

func TestRegisterObservation(t *testing.T) {
	r := newTestRegistry(0, 0)

	require.NoError(t, r.RegisterObservation("2:1012", "10.0.0.13", 3, t0))
	require.NoError(t, r.RegisterObservation("2:1012", "10.0.0.13", 5, t0.Add(time.Second)))

	assert.True(t, r.IsKnown("2:1012"))
	assert.False(t, r.IsKnown("2:1013"))
	assert.Equal(t, 1, r.AgentCount())
	assert.Equal(t, 2, r.InterfaceCount("2:1012"))
	assert.Equal(t, []int32{3, 5}, r.InterfaceIndexes("2:1012"))
	assert.Equal(t, "10.0.0.13", r.AgentAddr("2:1012"))
}

func TestRegisterObservationAgentOnly(t *testing.T) {
	r := newTestRegistry(0, 0)

	// ifIndex < 0 registers the agent without an interface, e.g. a flow
	// sample whose ports were "multiple"
	require.NoError(t, r.RegisterObservation("2:1012", "10.0.0.13", -1, t0))

	assert.True(t, r.IsKnown("2:1012"))
	assert.Equal(t, 0, r.InterfaceCount("2:1012"))
}

func TestRegisterObservationRefreshesLastSeen(t *testing.T) {
	r := newTestRegistry(0, 0)

	require.NoError(t, r.RegisterObservation("a", "", 1, t0))
	require.NoError(t, r.RegisterObservation("a", "", 1, t0.Add(time.Minute)))

	// an out-of-order older timestamp must not roll LastSeen back
	require.NoError(t, r.RegisterObservation("a", "", 1, t0.Add(-time.Minute)))

	snap := r.Snapshot(t0.Add(time.Minute), 0)
	require.Len(t, snap, 1)
	assert.Equal(t, t0, snap[0].FirstSeen)
	assert.Equal(t, t0.Add(time.Minute), snap[0].LastSeen)
}

func TestAgentCapacity(t *testing.T) {
	r := newTestRegistry(2, 0)

	require.NoError(t, r.RegisterObservation("a", "", 1, t0))
	require.NoError(t, r.RegisterObservation("b", "", 1, t0))

	err := r.RegisterObservation("c", "", 1, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// known agents keep updating at capacity
	require.NoError(t, r.RegisterObservation("a", "", 2, t0.Add(time.Second)))
	assert.Equal(t, 2, r.AgentCount())
}

func TestInterfaceCapacity(t *testing.T) {
	r := newTestRegistry(0, 2)

	require.NoError(t, r.RegisterObservation("a", "", 1, t0))
	require.NoError(t, r.RegisterObservation("a", "", 2, t0))

	err := r.RegisterObservation("a", "", 3, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// existing interfaces keep refreshing
	require.NoError(t, r.RegisterObservation("a", "", 2, t0.Add(time.Second)))
}

func TestUpdateCounters(t *testing.T) {
	r := newTestRegistry(0, 0)

	counters := models.InterfaceCounters{InOctets: 209721, OutOctets: 13473, IfSpeed: 10000000}
	require.NoError(t, r.UpdateCounters("2:1012", "10.0.0.13", 3, counters, t0))

	snap := r.Snapshot(t0, 0)
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Interfaces, 1)
	assert.Equal(t, counters, snap[0].Interfaces[0].Counters)

	assert.ErrorIs(t, r.UpdateCounters("2:1012", "", -1, counters, t0), ErrInvalidIfIndex)
}

func TestStaleAgents(t *testing.T) {
	r := newTestRegistry(0, 0)

	require.NoError(t, r.RegisterObservation("fresh", "", 1, t0.Add(9*time.Minute)))
	require.NoError(t, r.RegisterObservation("stale", "", 1, t0))

	ttl := 5 * time.Minute
	now := t0.Add(10 * time.Minute)

	assert.Equal(t, []string{"stale"}, r.StaleAgents(now, ttl))

	snap := r.Snapshot(now, ttl)
	require.Len(t, snap, 2)
	assert.False(t, snap[0].Stale, "fresh sorts first")
	assert.True(t, snap[1].Stale)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r := newTestRegistry(0, 0)

	require.NoError(t, r.RegisterObservation("a", "", 1, t0))

	snap := r.Snapshot(t0, 0)
	snap[0].Interfaces[0].IfIndex = 99
	snap[0].AgentID = "mutated"

	again := r.Snapshot(t0, 0)
	assert.Equal(t, "a", again[0].AgentID)
	assert.Equal(t, int32(1), again[0].Interfaces[0].IfIndex)
}
