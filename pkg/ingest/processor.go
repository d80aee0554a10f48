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
	"errors"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/mactable"
	"github.com/carverauto/flowtopo/pkg/registry"
	"github.com/carverauto/flowtopo/pkg/sflow"
	"github.com/carverauto/flowtopo/pkg/topology"
)

// maxCapacityWarnAgents bounds the per-agent dedup map for capacity
// warnings; a rogue stream inventing agent IDs must not grow it unbounded.
const maxCapacityWarnAgents = 2048

// Processor applies parsed observations to the registry, the learning
// tables and the inference engine, in arrival order. It is owned by the
// read loop and is not safe for concurrent use.
type Processor struct {
	registry       *registry.Registry
	tables         *mactable.Tables
	engine         *topology.Engine
	baselineRate   uint32
	tableCapWarned map[string]struct{}
	log            logger.Logger
}

// NewProcessor wires the three stores a single observation touches.
func NewProcessor(reg *registry.Registry, tables *mactable.Tables, engine *topology.Engine, baselineRate uint32, log logger.Logger) *Processor {
	return &Processor{
		registry:       reg,
		tables:         tables,
		engine:         engine,
		baselineRate:   baselineRate,
		tableCapWarned: make(map[string]struct{}),
		log:            log,
	}
}

// Apply folds one observation into the state. Capacity rejections are
// deliberate load shedding, not failures; they are absorbed here so a
// saturated table never stalls the stream.
func (p *Processor) Apply(obs sflow.Observation) error {
	switch o := obs.(type) {
	case *sflow.FlowObservation:
		return p.applyFlow(o)
	case *sflow.CounterObservation:
		return p.applyCounters(o)
	default:
		return nil
	}
}

func (p *Processor) applyFlow(o *sflow.FlowObservation) error {
	// The agent itself is evidence even when neither port is usable.
	if err := p.registry.RegisterObservation(o.AgentID, o.AgentAddr, -1, o.Timestamp); err != nil {
		return p.absorbCapacity(err)
	}

	weight := o.Weight(p.baselineRate)

	if o.SrcMAC != sflow.BroadcastMAC {
		p.engine.RecordHostIP(o.SrcMAC, o.SrcIP)
	}

	if o.DstMAC != sflow.BroadcastMAC {
		p.engine.RecordHostIP(o.DstMAC, o.DstIP)
	}

	// A flow entering on inputPort pins srcMAC below that interface; the
	// same flow leaving on outputPort pins dstMAC below that one.
	if o.HasInput {
		if err := p.learn(o.AgentID, o.AgentAddr, o.InputIndex, o.SrcMAC, o, weight); err != nil {
			return err
		}
	}

	if o.HasOutput {
		if err := p.learn(o.AgentID, o.AgentAddr, o.OutputIndex, o.DstMAC, o, weight); err != nil {
			return err
		}
	}

	return nil
}

func (p *Processor) learn(agentID, addr string, ifIndex int32, mac string, o *sflow.FlowObservation, weight float64) error {
	if err := p.registry.RegisterObservation(agentID, addr, ifIndex, o.Timestamp); err != nil {
		return p.absorbCapacity(err)
	}

	if mac == sflow.BroadcastMAC {
		return nil
	}

	if err := p.tables.Observe(agentID, ifIndex, mac, o.Timestamp, weight); err != nil {
		if errors.Is(err, mactable.ErrCapacityExceeded) {
			p.warnTableCapacity(agentID, err)

			return nil
		}

		return err
	}

	p.engine.ObserveSighting(agentID, ifIndex, o.Timestamp)

	return nil
}

// warnTableCapacity surfaces a saturated learning table once per agent; a
// full table otherwise repeats the warning at line rate.
func (p *Processor) warnTableCapacity(agentID string, err error) {
	if _, warned := p.tableCapWarned[agentID]; warned {
		p.log.Debug().Err(err).Str("agent_id", agentID).Msg("Sighting shed at capacity")

		return
	}

	if len(p.tableCapWarned) < maxCapacityWarnAgents {
		p.tableCapWarned[agentID] = struct{}{}
	}

	p.log.Warn().Err(err).Str("agent_id", agentID).Msg("MAC table at capacity, shedding new sightings")
}

func (p *Processor) applyCounters(o *sflow.CounterObservation) error {
	err := p.registry.UpdateCounters(o.AgentID, o.AgentAddr, o.IfIndex, o.Counters, o.Timestamp)
	if err != nil {
		return p.absorbCapacity(err)
	}

	return nil
}

// absorbCapacity downgrades registry capacity rejections; the registry
// already warned once per agent when the limit was first hit.
func (p *Processor) absorbCapacity(err error) error {
	if errors.Is(err, registry.ErrCapacityExceeded) {
		p.log.Debug().Err(err).Msg("Observation shed at capacity")

		return nil
	}

	return err
}
