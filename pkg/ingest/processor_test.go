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
	"testing"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/mactable"
	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/carverauto/flowtopo/pkg/registry"
	"github.com/carverauto/flowtopo/pkg/sflow"
	"github.com/carverauto/flowtopo/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type procBed struct {
	registry  *registry.Registry
	tables    *mactable.Tables
	engine    *topology.Engine
	processor *Processor
}

func newProcBed(t *testing.T, maxAgents int) *procBed {
	t.Helper()

	return newProcBedWithPolicy(t, maxAgents, mactable.DefaultPolicy())
}

func newProcBedWithPolicy(t *testing.T, maxAgents int, policy mactable.Policy) *procBed {
	t.Helper()

	log := logger.NewTestLogger()
	reg := registry.NewRegistry(maxAgents, 0, log)
	tables := mactable.NewTables(policy)

	engine, err := topology.NewEngine(topology.DefaultConfig(), reg, tables, log)
	require.NoError(t, err)

	return &procBed{
		registry:  reg,
		tables:    tables,
		engine:    engine,
		processor: NewProcessor(reg, tables, engine, 128, log),
	}
}

func flowObs(agentID string, in, out int32, srcMAC, dstMAC string) *sflow.FlowObservation {
	return &sflow.FlowObservation{
		AgentID:      agentID,
		AgentAddr:    "10.0.0.13",
		InputIndex:   in,
		OutputIndex:  out,
		HasInput:     true,
		HasOutput:    true,
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		SamplingRate: 128,
		Timestamp:    t0,
	}
}

func TestProcessorLearnsBothDirections(t *testing.T) {
	pb := newProcBed(t, 0)

	obs := flowObs("2:1000", 3, 1, "00163e0000aa", "00163e0000bb")
	require.NoError(t, pb.processor.Apply(obs))

	// srcMAC pinned below the input interface, dstMAC below the output
	s, ok := pb.tables.Lookup("2:1000", "00163e0000aa", t0)
	require.True(t, ok)
	assert.Equal(t, int32(3), s.IfIndex)

	s, ok = pb.tables.Lookup("2:1000", "00163e0000bb", t0)
	require.True(t, ok)
	assert.Equal(t, int32(1), s.IfIndex)

	assert.Equal(t, []int32{1, 3}, pb.registry.InterfaceIndexes("2:1000"))
	assert.Equal(t, "10.0.0.13", pb.registry.AgentAddr("2:1000"))
}

func TestProcessorSkipsBroadcastMAC(t *testing.T) {
	pb := newProcBed(t, 0)

	obs := flowObs("2:1000", 3, 1, "00163e0000aa", sflow.BroadcastMAC)
	require.NoError(t, pb.processor.Apply(obs))

	_, ok := pb.tables.Lookup("2:1000", sflow.BroadcastMAC, t0)
	assert.False(t, ok, "broadcast never identifies a host")

	// the interface itself is still registered
	assert.Equal(t, []int32{1, 3}, pb.registry.InterfaceIndexes("2:1000"))
}

func TestProcessorUnattributablePort(t *testing.T) {
	pb := newProcBed(t, 0)

	obs := flowObs("2:1000", 0, 1, "00163e0000aa", "00163e0000bb")
	obs.HasInput = false // sflowtool said "multiple N"

	require.NoError(t, pb.processor.Apply(obs))

	_, ok := pb.tables.Lookup("2:1000", "00163e0000aa", t0)
	assert.False(t, ok, "no interface to pin the source MAC to")

	s, ok := pb.tables.Lookup("2:1000", "00163e0000bb", t0)
	require.True(t, ok)
	assert.Equal(t, int32(1), s.IfIndex)

	assert.True(t, pb.registry.IsKnown("2:1000"))
}

func TestProcessorAppliesCounters(t *testing.T) {
	pb := newProcBed(t, 0)

	counters := models.InterfaceCounters{InOctets: 209721, OutOctets: 13473}
	obs := &sflow.CounterObservation{
		AgentID:   "2:1000",
		AgentAddr: "10.0.0.13",
		IfIndex:   3,
		Counters:  counters,
		Timestamp: t0,
	}

	require.NoError(t, pb.processor.Apply(obs))

	snap := pb.registry.Snapshot(t0, 0)
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Interfaces, 1)
	assert.Equal(t, counters, snap[0].Interfaces[0].Counters)
}

func TestProcessorAbsorbsCapacityRejections(t *testing.T) {
	pb := newProcBed(t, 1)

	require.NoError(t, pb.processor.Apply(flowObs("2:1000", 3, 1, "00163e0000aa", "00163e0000bb")))

	// a second agent is shed, not escalated: the stream must keep flowing
	assert.NoError(t, pb.processor.Apply(flowObs("2:1001", 3, 1, "00163e0000cc", "00163e0000dd")))
	assert.Equal(t, 1, pb.registry.AgentCount())
}

func TestProcessorShedsFullTableAndWarnsOncePerAgent(t *testing.T) {
	policy := mactable.DefaultPolicy()
	policy.MaxEntries = 1

	pb := newProcBedWithPolicy(t, 0, policy)

	// the first MAC fills the agent's table; everything after is shed
	require.NoError(t, pb.processor.Apply(flowObs("2:1000", 3, 1, "00163e0000aa", "00163e0000bb")))
	require.NoError(t, pb.processor.Apply(flowObs("2:1000", 3, 1, "00163e0000cc", "00163e0000dd")))

	_, ok := pb.tables.Lookup("2:1000", "00163e0000aa", t0)
	assert.True(t, ok)
	_, ok = pb.tables.Lookup("2:1000", "00163e0000bb", t0)
	assert.False(t, ok)

	// repeated rejections collapse into a single warning per agent
	assert.Len(t, pb.processor.tableCapWarned, 1)
	assert.Contains(t, pb.processor.tableCapWarned, "2:1000")

	require.NoError(t, pb.processor.Apply(flowObs("2:1001", 3, 1, "00163e0000ee", "00163e0000ff")))
	assert.Len(t, pb.processor.tableCapWarned, 2)
}

func TestProcessorRecordsHostAddresses(t *testing.T) {
	pb := newProcBed(t, 0)

	obs := flowObs("2:1000", 3, 1, "00163e0000aa", "00163e0000bb")
	obs.SrcIP = "10.0.0.12"

	require.NoError(t, pb.processor.Apply(obs))

	pb.engine.Reconcile(t0)
	snap := pb.engine.Snapshot(t0)

	require.Len(t, snap.Hosts, 2)
	assert.Equal(t, "00163e0000bb", snap.Hosts[0].MAC)
	assert.Empty(t, snap.Hosts[0].IP, "no address sampled for the destination")
	assert.Equal(t, "00163e0000aa", snap.Hosts[1].MAC)
	assert.Equal(t, "10.0.0.12", snap.Hosts[1].IP)
}
